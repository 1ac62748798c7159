package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/apierr"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

const MinGenerationsPerInstance = 2

type VariableInput struct {
	Key      string `json:"key" yaml:"key"`
	Label    string `json:"label" yaml:"label"`
	Required bool   `json:"required" yaml:"required"`
}

type ConfigurationInput struct {
	Name           string              `json:"name" yaml:"name"`
	PromptTemplate string              `json:"promptTemplate" yaml:"promptTemplate"`
	ModelProvider  types.ModelProvider `json:"modelProvider" yaml:"modelProvider"`
	ModelName      string              `json:"modelName" yaml:"modelName"`
	// APIKey nil keeps the stored credential on update; an empty string clears it.
	APIKey                 *string         `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	GenerationsPerInstance int             `json:"generationsPerInstance" yaml:"generationsPerInstance"`
	Rubric                 string          `json:"rubric" yaml:"rubric"`
	Variables              []VariableInput `json:"variables" yaml:"variables"`
	RejectionReasons       []string        `json:"rejectionReasons" yaml:"rejectionReasons"`
}

// RowError rejects one uploaded instance row. Row is 1-based.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type UploadResult struct {
	Created  int        `json:"created"`
	Rejected []RowError `json:"rejected"`
}

// InstanceView is an instance with its final winner, if one was determined.
type InstanceView struct {
	*types.PromptInstance
	Winner *types.FinalWinner `json:"winner"`
}

type ConfigurationService interface {
	Create(ctx context.Context, in ConfigurationInput) (*types.Configuration, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Configuration, error)
	List(ctx context.Context) ([]*types.Configuration, error)
	Update(ctx context.Context, id uuid.UUID, in ConfigurationInput) (*types.Configuration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UploadInstances(ctx context.Context, id uuid.UUID, rows []map[string]interface{}) (*UploadResult, error)
	ListInstances(ctx context.Context, id uuid.UUID) ([]InstanceView, error)
}

type configurationService struct {
	log       *logger.Logger
	configs   repos.ConfigurationRepo
	instances repos.PromptInstanceRepo
	winners   repos.FinalWinnerRepo
}

func NewConfigurationService(log *logger.Logger, configs repos.ConfigurationRepo, instances repos.PromptInstanceRepo, winners repos.FinalWinnerRepo) ConfigurationService {
	return &configurationService{
		log:       log.With("service", "ConfigurationService"),
		configs:   configs,
		instances: instances,
		winners:   winners,
	}
}

// ValidateConfigurationInput normalizes in and reports the first problem found.
func ValidateConfigurationInput(in *ConfigurationInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.ModelName = strings.TrimSpace(in.ModelName)
	in.ModelProvider = types.ModelProvider(strings.ToUpper(strings.TrimSpace(string(in.ModelProvider))))
	if in.Name == "" {
		return validationError("name is required")
	}
	if strings.TrimSpace(in.PromptTemplate) == "" {
		return validationError("promptTemplate is required")
	}
	if !in.ModelProvider.Valid() {
		return validationError(fmt.Sprintf("modelProvider must be one of %v", types.SupportedProviders))
	}
	if in.ModelName == "" {
		return validationError("modelName is required")
	}
	if in.GenerationsPerInstance < MinGenerationsPerInstance {
		return validationError(fmt.Sprintf("generationsPerInstance must be at least %d", MinGenerationsPerInstance))
	}
	seen := make(map[string]bool, len(in.Variables))
	for i := range in.Variables {
		key := strings.TrimSpace(in.Variables[i].Key)
		if key == "" {
			return validationError(fmt.Sprintf("variable %d has no key", i+1))
		}
		if strings.ContainsAny(key, "{} \t\r\n") {
			return validationError(fmt.Sprintf("variable key %q may not contain braces or whitespace", key))
		}
		if seen[key] {
			return validationError(fmt.Sprintf("duplicate variable key %q", key))
		}
		seen[key] = true
		in.Variables[i].Key = key
		in.Variables[i].Label = strings.TrimSpace(in.Variables[i].Label)
	}
	reasons := in.RejectionReasons[:0]
	for _, r := range in.RejectionReasons {
		if r = strings.TrimSpace(r); r != "" {
			reasons = append(reasons, r)
		}
	}
	in.RejectionReasons = reasons
	return nil
}

func applyInput(cfg *types.Configuration, in ConfigurationInput) {
	cfg.Name = in.Name
	cfg.PromptTemplate = in.PromptTemplate
	cfg.ModelProvider = in.ModelProvider
	cfg.ModelName = in.ModelName
	if in.APIKey != nil {
		cfg.APIKey = strings.TrimSpace(*in.APIKey)
	}
	cfg.GenerationsPerInstance = in.GenerationsPerInstance
	cfg.Rubric = in.Rubric
	cfg.Variables = make([]types.ConfigurationVariable, 0, len(in.Variables))
	for i, v := range in.Variables {
		label := v.Label
		if label == "" {
			label = v.Key
		}
		cfg.Variables = append(cfg.Variables, types.ConfigurationVariable{Key: v.Key, Label: label, Required: v.Required, Position: i})
	}
	cfg.RejectionReasons = make([]types.RejectionReason, 0, len(in.RejectionReasons))
	for i, r := range in.RejectionReasons {
		cfg.RejectionReasons = append(cfg.RejectionReasons, types.RejectionReason{Label: r, Position: i})
	}
}

func (s *configurationService) Create(ctx context.Context, in ConfigurationInput) (*types.Configuration, error) {
	rd, err := adminCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfigurationInput(&in); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := s.configs.FindByTenantAndName(dbc, rd.TenantID, in.Name)
	if err != nil {
		return nil, fmt.Errorf("check configuration name: %w", err)
	}
	if existing != nil {
		return nil, validationError(fmt.Sprintf("a configuration named %q already exists", in.Name))
	}
	userID := rd.UserID
	cfg := &types.Configuration{
		ID:              uuid.New(),
		TenantID:        rd.TenantID,
		Status:          types.ConfigurationDraft,
		CreatedByUserID: &userID,
	}
	applyInput(cfg, in)
	if _, err := s.configs.Create(dbc, cfg); err != nil {
		return nil, fmt.Errorf("create configuration: %w", err)
	}
	s.log.Info("configuration created", "configuration_id", cfg.ID, "tenant_id", cfg.TenantID)
	return s.configs.GetByID(dbc, cfg.ID)
}

func (s *configurationService) load(ctx context.Context, id uuid.UUID) (*types.Configuration, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetForTenant(dbctx.Context{Ctx: ctx}, rd.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	return cfg, nil
}

func (s *configurationService) Get(ctx context.Context, id uuid.UUID) (*types.Configuration, error) {
	return s.load(ctx, id)
}

func (s *configurationService) List(ctx context.Context) ([]*types.Configuration, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.configs.ListByTenant(dbctx.Context{Ctx: ctx}, rd.TenantID)
}

func (s *configurationService) Update(ctx context.Context, id uuid.UUID, in ConfigurationInput) (*types.Configuration, error) {
	rd, err := adminCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfigurationInput(&in); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	if cfg.Status == types.ConfigurationExecuting {
		return nil, apierr.New(http.StatusConflict, CodeConfigurationBusy, fmt.Errorf("configuration is executing"))
	}
	if in.Name != cfg.Name {
		other, err := s.configs.FindByTenantAndName(dbc, rd.TenantID, in.Name)
		if err != nil {
			return nil, fmt.Errorf("check configuration name: %w", err)
		}
		if other != nil && other.ID != cfg.ID {
			return nil, validationError(fmt.Sprintf("a configuration named %q already exists", in.Name))
		}
	}
	applyInput(cfg, in)
	if err := s.configs.Update(dbc, cfg); err != nil {
		return nil, fmt.Errorf("update configuration: %w", err)
	}
	return s.configs.GetByID(dbc, cfg.ID)
}

func (s *configurationService) Delete(ctx context.Context, id uuid.UUID) error {
	rd, err := adminCaller(ctx)
	if err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, id)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return configurationNotFound()
	}
	if err := s.configs.Delete(dbc, cfg.ID); err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	s.log.Info("configuration deleted", "configuration_id", cfg.ID)
	return nil
}

// UploadInstances creates one PENDING instance per valid row. Rows missing a required
// variable are rejected individually; the rest are still created.
func (s *configurationService) UploadInstances(ctx context.Context, id uuid.UUID, rows []map[string]interface{}) (*UploadResult, error) {
	rd, err := adminCaller(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	if cfg.Status == types.ConfigurationExecuting {
		return nil, apierr.New(http.StatusConflict, CodeConfigurationBusy, fmt.Errorf("configuration is executing"))
	}
	if len(rows) == 0 {
		return nil, validationError("no instances provided")
	}

	result := &UploadResult{Rejected: []RowError{}}
	required := cfg.RequiredKeys()
	instances := make([]*types.PromptInstance, 0, len(rows))
	for i, row := range rows {
		values := normalizeRow(row)
		if missing := missingKeys(values, required); len(missing) > 0 {
			result.Rejected = append(result.Rejected, RowError{
				Row:   i + 1,
				Error: "missing required variables: " + strings.Join(missing, ", "),
			})
			continue
		}
		instances = append(instances, &types.PromptInstance{
			ConfigurationID: cfg.ID,
			Data:            types.EncodeValues(values),
			Status:          types.InstancePending,
		})
	}
	if len(instances) > 0 {
		if _, err := s.instances.Create(dbc, instances); err != nil {
			return nil, fmt.Errorf("create instances: %w", err)
		}
	}
	result.Created = len(instances)
	s.log.Info("instances uploaded", "configuration_id", cfg.ID, "created", result.Created, "rejected", len(result.Rejected))
	return result, nil
}

func normalizeRow(row map[string]interface{}) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		switch t := v.(type) {
		case nil:
			out[key] = ""
		case string:
			out[key] = t
		default:
			raw, err := json.Marshal(t)
			if err != nil {
				out[key] = fmt.Sprint(t)
				continue
			}
			out[key] = string(raw)
		}
	}
	return out
}

func missingKeys(values map[string]string, required []string) []string {
	var missing []string
	for _, k := range required {
		if strings.TrimSpace(values[k]) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

func (s *configurationService) ListInstances(ctx context.Context, id uuid.UUID) ([]InstanceView, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	instances, err := s.instances.ListByConfiguration(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	winners, err := s.winners.ListByConfiguration(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	byInstance := make(map[uuid.UUID]*types.FinalWinner, len(winners))
	for _, w := range winners {
		byInstance[w.PromptInstanceID] = w
	}
	out := make([]InstanceView, 0, len(instances))
	for _, inst := range instances {
		out = append(out, InstanceView{PromptInstance: inst, Winner: byInstance[inst.ID]})
	}
	return out, nil
}
