package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	"github.com/yungbote/ratebench-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	httpH "github.com/yungbote/ratebench-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ratebench-backend/internal/http/middleware"
	"github.com/yungbote/ratebench-backend/internal/modules/generation"
	"github.com/yungbote/ratebench-backend/internal/modules/tournament"
	"github.com/yungbote/ratebench-backend/internal/platform/llm"
	"github.com/yungbote/ratebench-backend/internal/services"
)

const routerSecret = "router-secret"

type echoProvider struct{ n int }

func (p *echoProvider) Name() types.ModelProvider { return types.ProviderOpenAI }

func (p *echoProvider) GenerateCompletion(_ context.Context, req llm.Request) llm.Result {
	p.n++
	return llm.Result{Output: req.Prompt + " v" + string(rune('0'+p.n))}
}

type routerEnv struct {
	engine *gin.Engine
	tenant uuid.UUID
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	configs := repos.NewConfigurationRepo(db, log)
	instances := repos.NewPromptInstanceRepo(db, log)
	runs := repos.NewGenerationRunRepo(db, log)
	completions := repos.NewCompletionRepo(db, log)
	matches := repos.NewRatingMatchRepo(db, log)
	responses := repos.NewRatingResponseRepo(db, log)
	winners := repos.NewFinalWinnerRepo(db, log)

	bracket := tournament.New(tournament.Deps{
		Log: log, Instances: instances, Completions: completions, Matches: matches, Winners: winners,
	})
	worker := generation.NewWorker(generation.WorkerDeps{
		Log:            log,
		Providers:      llm.NewRegistryWith(&echoProvider{}),
		Brackets:       bracket,
		Configurations: configs,
		Instances:      instances,
		Runs:           runs,
		Completions:    completions,
	})
	configSvc := services.NewConfigurationService(log, configs, instances, winners)
	runSvc := services.NewGenerationRunService(db, log, configs, instances, runs, worker, bracket, nil, services.GenerationRunConfig{})
	ratingSvc := services.NewRatingService(db, log, configs, instances, completions, matches, responses, winners, bracket, services.RatingConfig{})

	engine := NewRouter(RouterConfig{
		Log:                  log,
		AuthMiddleware:       httpMW.NewAuthMiddleware(log, routerSecret),
		ConfigurationHandler: httpH.NewConfigurationHandler(configSvc),
		RunHandler:           httpH.NewRunHandler(runSvc),
		RatingHandler:        httpH.NewRatingHandler(ratingSvc),
		HealthHandler:        httpH.NewHealthHandler(db),
	})
	return &routerEnv{engine: engine, tenant: uuid.New()}
}

func (e *routerEnv) token(t *testing.T, user uuid.UUID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpMW.Claims{
		UserID:   user.String(),
		TenantID: e.tenant.String(),
		Role:     role,
	}).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return s
}

func (e *routerEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func obj(t *testing.T, m map[string]any, key string) map[string]any {
	t.Helper()
	v, ok := m[key].(map[string]any)
	require.True(t, ok, "missing object %q in %v", key, m)
	return v
}

func errorCode(t *testing.T, m map[string]any) string {
	t.Helper()
	return obj(t, m, "error")["code"].(string)
}

func TestHealthcheckIsPublic(t *testing.T) {
	e := newRouterEnv(t)
	code, _ := e.do(t, http.MethodGet, "/healthcheck", "", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestAPIRequiresAuthAndAdmin(t *testing.T) {
	e := newRouterEnv(t)
	code, body := e.do(t, http.MethodGet, "/api/configurations", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, services.CodeUnauthorized, errorCode(t, body))

	rater := e.token(t, uuid.New(), "RATER")
	code, _ = e.do(t, http.MethodGet, "/api/configurations", rater, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodPost, "/api/worker/batch", rater, nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, services.CodeForbidden, errorCode(t, body))
}

func TestBadIDsAndMissingRows(t *testing.T) {
	e := newRouterEnv(t)
	admin := e.token(t, uuid.New(), services.RoleAdmin)

	code, body := e.do(t, http.MethodGet, "/api/runs/not-a-uuid", admin, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_run_id", errorCode(t, body))

	code, body = e.do(t, http.MethodGet, "/api/configurations/"+uuid.NewString(), admin, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, services.CodeConfigurationNotFound, errorCode(t, body))
}

func TestGenerateAndRateOverHTTP(t *testing.T) {
	e := newRouterEnv(t)
	admin := e.token(t, uuid.New(), services.RoleAdmin)
	rater := e.token(t, uuid.New(), "RATER")

	code, body := e.do(t, http.MethodPost, "/api/configurations", admin, map[string]any{
		"name":                   "haiku",
		"promptTemplate":         "Write a haiku about {{topic}}",
		"modelProvider":          "openai",
		"modelName":              "gpt-4o-mini",
		"generationsPerInstance": 2,
		"variables":              []map[string]any{{"key": "topic", "label": "Topic", "required": true}},
		"rejectionReasons":       []string{"Not a haiku"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	cfgID := obj(t, body, "configuration")["id"].(string)

	code, body = e.do(t, http.MethodPost, "/api/configurations/"+cfgID+"/instances", admin, map[string]any{
		"instances": []map[string]any{{"topic": "rain"}, {"other": "x"}},
	})
	require.Equal(t, http.StatusOK, code, body)
	require.EqualValues(t, 1, body["created"])
	require.Len(t, body["rejected"], 1)

	code, body = e.do(t, http.MethodPost, "/api/configurations/"+cfgID+"/runs", admin, nil)
	require.Equal(t, http.StatusCreated, code, body)
	runID := obj(t, body, "run")["id"].(string)

	code, body = e.do(t, http.MethodPost, "/api/configurations/"+cfgID+"/runs", admin, nil)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, services.CodeRunActive, errorCode(t, body))

	completed := false
	for i := 0; i < 5 && !completed; i++ {
		code, body = e.do(t, http.MethodPost, "/api/worker/batch", admin, nil)
		require.Equal(t, http.StatusOK, code, body)
		completed, _ = body["completed"].(bool)
	}
	require.True(t, completed)

	code, body = e.do(t, http.MethodGet, "/api/runs/"+runID, admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, string(types.RunCompleted), obj(t, body, "run")["status"])

	code, body = e.do(t, http.MethodPost, "/api/rating/next", rater, nil)
	require.Equal(t, http.StatusOK, code, body)
	assignment := obj(t, body, "assignment")
	matchID := obj(t, assignment, "match")["id"].(string)
	require.Equal(t, "Write a haiku about rain", assignment["prompt"])

	code, body = e.do(t, http.MethodPost, "/api/rating/matches/"+matchID+"/submit", rater, map[string]any{"outcome": "SIDEWAYS"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, services.CodeInvalidOutcome, errorCode(t, body))

	code, body = e.do(t, http.MethodPost, "/api/rating/matches/"+matchID+"/submit", rater, map[string]any{"outcome": "A_BETTER"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = e.do(t, http.MethodPost, "/api/rating/matches/"+matchID+"/submit", rater, map[string]any{"outcome": "A_BETTER"})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, services.CodeAlreadyRated, errorCode(t, body))

	code, body = e.do(t, http.MethodPost, "/api/rating/next", rater, nil)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, body["assignment"])

	code, body = e.do(t, http.MethodGet, "/api/configurations/"+cfgID+"/results", rater, nil)
	require.Equal(t, http.StatusOK, code)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	winner := results[0].(map[string]any)["winner"].(map[string]any)
	require.EqualValues(t, 0, winner["completionIndex"])

	code, body = e.do(t, http.MethodGet, "/api/configurations/"+cfgID+"/rating/progress", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, obj(t, body, "progress")["instancesRated"])
}
