package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// SeedFile is the YAML document read by SettingsSync.
type SeedFile struct {
	Configurations []SeedConfiguration `yaml:"configurations"`
}

type SeedConfiguration struct {
	TenantID           string              `yaml:"tenantId"`
	ConfigurationInput `yaml:",inline"`
	Instances          []map[string]string `yaml:"instances"`
}

// SettingsSync creates the configurations listed in a seed file. Existing
// configurations (same tenant and name) are left untouched.
type SettingsSync struct {
	path      string
	log       *logger.Logger
	configs   repos.ConfigurationRepo
	instances repos.PromptInstanceRepo

	mu   sync.Mutex
	done bool
}

func NewSettingsSync(path string, log *logger.Logger, configs repos.ConfigurationRepo, instances repos.PromptInstanceRepo) *SettingsSync {
	return &SettingsSync{
		path:      strings.TrimSpace(path),
		log:       log.With("service", "SettingsSync"),
		configs:   configs,
		instances: instances,
	}
}

// Ensure runs the sync once. After a success later calls return immediately; after a
// failure the next call tries again.
func (s *SettingsSync) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	if s.path == "" {
		s.done = true
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	created, err := s.apply(ctx, raw)
	if err != nil {
		return err
	}
	s.done = true
	s.log.Info("seed configurations synced", "path", s.path, "created", created)
	return nil
}

// Synced reports whether Ensure has completed.
func (s *SettingsSync) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *SettingsSync) apply(ctx context.Context, raw []byte) (int, error) {
	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	created := 0
	for i, sc := range file.Configurations {
		tenantID, err := uuid.Parse(strings.TrimSpace(sc.TenantID))
		if err != nil {
			return created, fmt.Errorf("seed configuration %d: invalid tenantId: %w", i+1, err)
		}
		in := sc.ConfigurationInput
		if err := ValidateConfigurationInput(&in); err != nil {
			return created, fmt.Errorf("seed configuration %d (%s): %w", i+1, in.Name, err)
		}
		existing, err := s.configs.FindByTenantAndName(dbc, tenantID, in.Name)
		if err != nil {
			return created, fmt.Errorf("seed configuration %q: %w", in.Name, err)
		}
		if existing != nil {
			continue
		}
		cfg := &types.Configuration{ID: uuid.New(), TenantID: tenantID, Status: types.ConfigurationDraft}
		applyInput(cfg, in)
		if _, err := s.configs.Create(dbc, cfg); err != nil {
			return created, fmt.Errorf("create seed configuration %q: %w", in.Name, err)
		}
		if len(sc.Instances) > 0 {
			required := cfg.RequiredKeys()
			instances := make([]*types.PromptInstance, 0, len(sc.Instances))
			for row, values := range sc.Instances {
				if missing := missingKeys(values, required); len(missing) > 0 {
					s.log.Warn("skipping seed instance", "configuration", in.Name, "row", row+1, "missing", missing)
					continue
				}
				instances = append(instances, &types.PromptInstance{
					ConfigurationID: cfg.ID,
					Data:            types.EncodeValues(values),
					Status:          types.InstancePending,
				})
			}
			if _, err := s.instances.Create(dbc, instances); err != nil {
				return created, fmt.Errorf("create seed instances for %q: %w", in.Name, err)
			}
		}
		created++
	}
	return created, nil
}
