package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/modules/generation"
	"github.com/yungbote/ratebench-backend/internal/modules/tournament"
	"github.com/yungbote/ratebench-backend/internal/observability"
	"github.com/yungbote/ratebench-backend/internal/platform/apierr"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// Rating rejection codes. Clients fetch a replacement match on any of them except NO_LOCK.
const (
	CodeAlreadyRated      = "ALREADY_RATED"
	CodeLockedByOther     = "LOCKED_BY_OTHER"
	CodeNoLock            = "NO_LOCK"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeDuplicateResponse = "DUPLICATE_RESPONSE"
	CodeInvalidOutcome    = "INVALID_OUTCOME"
	CodeMatchNotFound     = "MATCH_NOT_FOUND"
)

const (
	DefaultLockTimeout        = 5 * time.Minute
	DefaultCandidateSample    = 10
	DefaultMaxAcquireAttempts = 5
)

// Advancer moves a bracket forward after a match completes.
type Advancer interface {
	Advance(dbc dbctx.Context, match *types.RatingMatch) (*tournament.Advancement, error)
}

type RatingConfig struct {
	LockTimeout        time.Duration
	CandidateSample    int
	MaxAcquireAttempts int
	Now                func() time.Time
	// Pick chooses an index in [0, n). Defaults to a uniform random choice.
	Pick func(n int) int
}

type MatchOption struct {
	CompletionID uuid.UUID `json:"completionId"`
	Output       string    `json:"output"`
}

// MatchAssignment is a locked match with what a rater needs to judge it.
type MatchAssignment struct {
	Match            *types.RatingMatch      `json:"match"`
	Prompt           string                  `json:"prompt"`
	OptionA          MatchOption             `json:"optionA"`
	OptionB          MatchOption             `json:"optionB"`
	Rubric           string                  `json:"rubric"`
	RejectionReasons []types.RejectionReason `json:"rejectionReasons"`
	LockExpiresAt    time.Time               `json:"lockExpiresAt"`
}

type SubmitInput struct {
	MatchID            uuid.UUID     `json:"matchId"`
	Outcome            types.Outcome `json:"outcome"`
	RejectionReasonIDs []uuid.UUID   `json:"rejectionReasonIds"`
	Notes              string        `json:"notes"`
}

type SubmitResult struct {
	Response    *types.RatingResponse   `json:"response"`
	Match       *types.RatingMatch      `json:"match"`
	Advancement *tournament.Advancement `json:"advancement,omitempty"`
}

type RatingProgress struct {
	TotalMatches       int64 `json:"totalMatches"`
	CompletedMatches   int64 `json:"completedMatches"`
	InstancesRated     int64 `json:"instancesRated"`
	InstancesAwaiting  int64 `json:"instancesAwaiting"`
	InstancesPending   int64 `json:"instancesPending"`
	InstancesGenerated int64 `json:"instancesGenerated"`
}

type InstanceResult struct {
	InstanceID uuid.UUID             `json:"instanceId"`
	Status     types.InstanceStatus  `json:"status"`
	Data       map[string]string     `json:"data"`
	Winner     *InstanceResultWinner `json:"winner"`
}

type InstanceResultWinner struct {
	CompletionID    uuid.UUID `json:"completionId"`
	CompletionIndex int       `json:"completionIndex"`
	Output          string    `json:"output"`
	DeterminedAt    time.Time `json:"determinedAt"`
}

type RatingService interface {
	// NextMatch returns nil without error when no match is available.
	NextMatch(ctx context.Context) (*MatchAssignment, error)
	Release(ctx context.Context, matchID uuid.UUID) error
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	Progress(ctx context.Context, configID uuid.UUID) (*RatingProgress, error)
	Results(ctx context.Context, configID uuid.UUID) ([]InstanceResult, error)
}

type ratingService struct {
	db          *gorm.DB
	log         *logger.Logger
	configs     repos.ConfigurationRepo
	instances   repos.PromptInstanceRepo
	completions repos.CompletionRepo
	matches     repos.RatingMatchRepo
	responses   repos.RatingResponseRepo
	winners     repos.FinalWinnerRepo
	advancer    Advancer
	cfg         RatingConfig
}

func NewRatingService(
	db *gorm.DB,
	log *logger.Logger,
	configs repos.ConfigurationRepo,
	instances repos.PromptInstanceRepo,
	completions repos.CompletionRepo,
	matches repos.RatingMatchRepo,
	responses repos.RatingResponseRepo,
	winners repos.FinalWinnerRepo,
	advancer Advancer,
	cfg RatingConfig,
) RatingService {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.CandidateSample <= 0 {
		cfg.CandidateSample = DefaultCandidateSample
	}
	if cfg.MaxAcquireAttempts <= 0 {
		cfg.MaxAcquireAttempts = DefaultMaxAcquireAttempts
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}
	return &ratingService{
		db:          db,
		log:         log.With("service", "RatingService"),
		configs:     configs,
		instances:   instances,
		completions: completions,
		matches:     matches,
		responses:   responses,
		winners:     winners,
		advancer:    advancer,
		cfg:         cfg,
	}
}

func reject(status int, code, msg string) error {
	observability.Current().IncRatingRejection(code)
	return apierr.New(status, code, errors.New(msg))
}

// NextMatch keeps a rater on the match they already hold, or locks a random open one.
// Lost lock races retry a bounded number of times.
func (s *ratingService) NextMatch(ctx context.Context) (*MatchAssignment, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}

	now := s.cfg.Now()
	cutoff := now.Add(-s.cfg.LockTimeout)
	held, err := s.matches.FindHeldBy(dbc, rd.TenantID, rd.UserID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find held match: %w", err)
	}
	if held != nil {
		ok, err := s.matches.RefreshLock(dbc, held.ID, rd.UserID, now, cutoff)
		if err != nil {
			return nil, fmt.Errorf("refresh lock: %w", err)
		}
		if ok {
			held.LockedAt = &now
			observability.Current().IncRatingAcquire("resumed")
			return s.assemble(dbc, held)
		}
	}

	if n, err := s.matches.ClearExpiredLocks(dbc, rd.UserID, cutoff); err != nil {
		s.log.Warn("clear expired locks failed", "user_id", rd.UserID, "error", err)
	} else if n > 0 {
		s.log.Debug("cleared expired locks", "user_id", rd.UserID, "count", n)
	}

	for attempt := 0; attempt < s.cfg.MaxAcquireAttempts; attempt++ {
		now = s.cfg.Now()
		cutoff = now.Add(-s.cfg.LockTimeout)
		candidates, err := s.matches.SampleAvailable(dbc, rd.TenantID, rd.UserID, cutoff, s.cfg.CandidateSample)
		if err != nil {
			return nil, fmt.Errorf("sample matches: %w", err)
		}
		if len(candidates) == 0 {
			observability.Current().IncRatingAcquire("empty")
			return nil, nil
		}
		pick := candidates[s.cfg.Pick(len(candidates))]
		ok, err := s.matches.TryLock(dbc, pick.ID, rd.UserID, now, cutoff)
		if err != nil {
			return nil, fmt.Errorf("lock match: %w", err)
		}
		if ok {
			user := rd.UserID
			pick.LockedBy = &user
			pick.LockedAt = &now
			observability.Current().IncRatingAcquire("acquired")
			return s.assemble(dbc, pick)
		}
		observability.Current().IncRatingAcquire("race")
		s.log.Debug("lost lock race", "match_id", pick.ID, "attempt", attempt+1)
	}
	observability.Current().IncRatingAcquire("contended")
	s.log.Warn("gave up acquiring a match under contention", "user_id", rd.UserID, "attempts", s.cfg.MaxAcquireAttempts)
	return nil, nil
}

func (s *ratingService) assemble(dbc dbctx.Context, m *types.RatingMatch) (*MatchAssignment, error) {
	comps, err := s.completions.GetByIDs(dbc, []uuid.UUID{m.OptionAID, m.OptionBID})
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Completion, len(comps))
	for _, c := range comps {
		byID[c.ID] = c
	}
	a, b := byID[m.OptionAID], byID[m.OptionBID]
	if a == nil || b == nil {
		return nil, fmt.Errorf("match %s references missing completions", m.ID)
	}
	cfg, err := s.configs.GetByID(dbc, m.ConfigurationID)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	out := &MatchAssignment{
		Match:            m,
		OptionA:          MatchOption{CompletionID: a.ID, Output: a.Output},
		OptionB:          MatchOption{CompletionID: b.ID, Output: b.Output},
		Rubric:           cfg.Rubric,
		RejectionReasons: cfg.RejectionReasons,
		LockExpiresAt:    m.LockExpiresAt(s.cfg.LockTimeout),
	}
	inst, err := s.instances.GetByID(dbc, m.PromptInstanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst != nil {
		values, err := inst.Values()
		if err != nil {
			s.log.Warn("instance data unreadable", "instance_id", inst.ID, "error", err)
		}
		out.Prompt = generation.Interpolate(cfg.PromptTemplate, values)
	}
	return out, nil
}

func (s *ratingService) Release(ctx context.Context, matchID uuid.UUID) error {
	rd, err := caller(ctx)
	if err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: ctx}
	m, err := s.matches.GetByID(dbc, matchID)
	if err != nil {
		return fmt.Errorf("load match: %w", err)
	}
	if m == nil || m.TenantID != rd.TenantID {
		return apierr.New(http.StatusNotFound, CodeMatchNotFound, errors.New("match not found"))
	}
	if _, err := s.matches.ReleaseLock(dbc, m.ID, rd.UserID); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Submit records the caller's judgment, completes the match and advances its bracket.
func (s *ratingService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ctx, span := observability.Tracer("rating").Start(ctx, "rating.submit")
	defer span.End()
	span.SetAttributes(attribute.String("match_id", in.MatchID.String()), attribute.String("outcome", string(in.Outcome)))

	res, err := s.submit(ctx, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if code := apierr.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("rejection", code))
		}
	}
	return res, err
}

func (s *ratingService) submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	in.Outcome = types.Outcome(strings.ToUpper(strings.TrimSpace(string(in.Outcome))))
	if !in.Outcome.Valid() {
		return nil, reject(http.StatusBadRequest, CodeInvalidOutcome, fmt.Sprintf("outcome %q is not one of A_BETTER, B_BETTER, BOTH_GOOD, NEITHER_GOOD", in.Outcome))
	}

	dbc := dbctx.Context{Ctx: ctx}
	m, err := s.matches.GetByID(dbc, in.MatchID)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if m == nil || m.TenantID != rd.TenantID {
		return nil, reject(http.StatusNotFound, CodeMatchNotFound, "match not found")
	}
	if m.IsComplete {
		return nil, reject(http.StatusConflict, CodeAlreadyRated, "match has already been rated")
	}

	now := s.cfg.Now()
	cutoff := now.Add(-s.cfg.LockTimeout)
	switch m.LockStateFor(rd.UserID, now, s.cfg.LockTimeout) {
	case types.LockHeldByOther:
		return nil, reject(http.StatusConflict, CodeLockedByOther, "match is locked by another rater")
	case types.LockFree:
		return nil, reject(http.StatusConflict, CodeNoLock, "match was not assigned to you")
	case types.LockExpired:
		ok, err := s.matches.TryRelock(dbc, m.ID, rd.UserID, now, cutoff)
		if err != nil {
			return nil, fmt.Errorf("relock match: %w", err)
		}
		if !ok {
			return nil, reject(http.StatusConflict, CodeSessionExpired, "your session on this match expired and it was reassigned")
		}
	}

	dup, err := s.responses.Exists(dbc, m.ID, rd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check existing response: %w", err)
	}
	if dup {
		return nil, reject(http.StatusConflict, CodeDuplicateResponse, "you have already rated this match")
	}

	reasonIDs, err := s.validReasons(dbc, m.ConfigurationID, in.RejectionReasonIDs)
	if err != nil {
		return nil, err
	}

	winner := m.WinnerFor(in.Outcome)
	resp := &types.RatingResponse{
		RatingMatchID:      m.ID,
		UserID:             rd.UserID,
		Outcome:            in.Outcome,
		RejectionReasonIDs: types.EncodeReasonIDs(reasonIDs),
		Notes:              strings.TrimSpace(in.Notes),
	}
	errAlreadyRated := errors.New("match completed concurrently")
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.responses.Create(inner, resp); err != nil {
			return fmt.Errorf("create response: %w", err)
		}
		ok, err := s.matches.Complete(inner, m.ID, in.Outcome, winner, now)
		if err != nil {
			return fmt.Errorf("complete match: %w", err)
		}
		if !ok {
			return errAlreadyRated
		}
		return nil
	})
	if errors.Is(txErr, errAlreadyRated) {
		return nil, reject(http.StatusConflict, CodeAlreadyRated, "match has already been rated")
	}
	if txErr != nil {
		if exists, err := s.responses.Exists(dbc, m.ID, rd.UserID); err == nil && exists {
			return nil, reject(http.StatusConflict, CodeDuplicateResponse, "you have already rated this match")
		}
		return nil, txErr
	}
	observability.Current().IncRatingSubmission(string(in.Outcome))

	m.IsComplete = true
	outcome := in.Outcome
	m.Outcome = &outcome
	m.WinnerCompletionID = winner
	m.LockedBy = nil
	m.LockedAt = nil
	m.CompletedAt = &now

	result := &SubmitResult{Response: resp, Match: m}
	// Advancing after commit lets sibling completions see each other; a failure here
	// is repaired by rebuilding brackets.
	adv, err := s.advancer.Advance(dbc, m)
	if err != nil {
		s.log.Error("bracket advancement failed", "match_id", m.ID, "instance_id", m.PromptInstanceID, "error", err)
	} else {
		result.Advancement = adv
	}
	s.log.Info("rating submitted", "match_id", m.ID, "outcome", in.Outcome, "user_id", rd.UserID)
	return result, nil
}

func (s *ratingService) validReasons(dbc dbctx.Context, configID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cfg, err := s.configs.GetByID(dbc, configID)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	known := make(map[uuid.UUID]bool)
	if cfg != nil {
		for _, r := range cfg.RejectionReasons {
			known[r.ID] = true
		}
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !known[id] {
			return nil, validationError(fmt.Sprintf("unknown rejection reason %s", id))
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *ratingService) Progress(ctx context.Context, configID uuid.UUID) (*RatingProgress, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, configID)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	total, complete, err := s.matches.CountByConfiguration(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}
	counts, err := s.instances.CountByStatus(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}
	return &RatingProgress{
		TotalMatches:       total,
		CompletedMatches:   complete,
		InstancesRated:     counts[types.InstanceRated],
		InstancesAwaiting:  counts[types.InstanceReadyForRating],
		InstancesPending:   counts[types.InstancePending] + counts[types.InstanceGenerating],
		InstancesGenerated: counts[types.InstanceReadyForRating] + counts[types.InstanceRated],
	}, nil
}

// Results lists every instance with its winning completion. Instances whose deciding
// match tied are RATED with a nil winner.
func (s *ratingService) Results(ctx context.Context, configID uuid.UUID) ([]InstanceResult, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, configID)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	instances, err := s.instances.ListByConfiguration(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	winners, err := s.winners.ListByConfiguration(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	byInstance := make(map[uuid.UUID]*types.FinalWinner, len(winners))
	compIDs := make([]uuid.UUID, 0, len(winners))
	for _, w := range winners {
		byInstance[w.PromptInstanceID] = w
		compIDs = append(compIDs, w.CompletionID)
	}
	comps, err := s.completions.GetByIDs(dbc, compIDs)
	if err != nil {
		return nil, fmt.Errorf("load winning completions: %w", err)
	}
	outputs := make(map[uuid.UUID]string, len(comps))
	for _, c := range comps {
		outputs[c.ID] = c.Output
	}

	out := make([]InstanceResult, 0, len(instances))
	for _, inst := range instances {
		values, _ := inst.Values()
		r := InstanceResult{InstanceID: inst.ID, Status: inst.Status, Data: values}
		if w := byInstance[inst.ID]; w != nil {
			r.Winner = &InstanceResultWinner{
				CompletionID:    w.CompletionID,
				CompletionIndex: w.CompletionIndex,
				Output:          outputs[w.CompletionID],
				DeterminedAt:    w.DeterminedAt,
			}
		}
		out = append(out, r)
	}
	return out, nil
}
