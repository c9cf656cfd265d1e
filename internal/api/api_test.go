package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/api"
	"github.com/byefat/backend/internal/router"
	"github.com/byefat/backend/internal/service"
	"github.com/byefat/backend/internal/testhelpers"
	"github.com/byefat/backend/internal/testhelpers/mocks"
)

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	auth     *service.AuthService
	barcodes *mocks.MockBarcodeService
	portions *mocks.MockPortionEstimator
	images   *mocks.MockImageEstimator
}

func setupTestEnv(t *testing.T, override ...func(*router.Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testhelpers.SetupSQLite(t)
	log := zap.NewNop()
	notifier := service.NewLocalNotifier()
	auth := service.NewAuthService(db, "test-secret", time.Hour)
	env := &testEnv{
		db:       db,
		auth:     auth,
		barcodes: new(mocks.MockBarcodeService),
		portions: new(mocks.MockPortionEstimator),
		images:   new(mocks.MockImageEstimator),
	}

	deps := router.Deps{
		DB:              db,
		Log:             log,
		ShowDiagnostics: true,
		Auth:            auth,
		Validator:       auth,
		Profiles:        service.NewProfileService(db, notifier, log),
		Logs:            service.NewLogService(db, service.NewXPLedger(db, log), nil, notifier, log),
		Reconciler:      service.NewReconciler(db, notifier, log),
		Notifier:        notifier,
		Weights:         service.NewWeightService(db, notifier, log),
		Progress:        service.NewProgressService(db),
		Products:        service.NewProductService(db, log),
		Barcodes:        env.barcodes,
		Portions:        env.portions,
		Images:          env.images,
	}
	for _, o := range override {
		o(&deps)
	}
	env.router = router.SetupRouter(deps)

	t.Cleanup(func() {
		env.barcodes.AssertExpectations(t)
		env.portions.AssertExpectations(t)
		env.images.AssertExpectations(t)
	})
	return env
}

// register creates an account and returns its user ID and bearer token.
func (e *testEnv) register(t *testing.T, email string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
		Name: "Ana", Email: email, Password: "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.User.ID.String(), resp.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])

	w = env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t, "ana@example.com")

	t.Run("duplicate email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
			Name: "Ana", Email: "ana@example.com", Password: "secret123",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("short password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
			Name: "Bob", Email: "bob@example.com", Password: "123",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{
			Email: "ana@example.com", Password: "nope-nope",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid credentials", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{
			Email: "ana@example.com", Password: "secret123",
		})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[api.AuthResponse](t, w)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "ana@example.com", resp.User.Email)
	})
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name  string
		token string
		auth  string
	}{
		{name: "missing header"},
		{name: "wrong scheme", auth: "Basic abc"},
		{name: "garbage token", auth: "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.auth != "" {
				headers = []string{"Authorization", tt.auth}
			}
			w := env.do(t, http.MethodGet, "/api/v1/profile", "", nil, headers...)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestProfileIsCreatedOnFirstRequest(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[api.ProfileResponse](t, w)
	assert.Equal(t, userID, resp.Profile.UserID)
	assert.Equal(t, 1, resp.Level.Level)

	name := "Ana Maria"
	w = env.do(t, http.MethodPut, "/api/v1/profile", token, service.ProfileUpdate{Name: &name})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana Maria", testhelpers.ReloadProfile(t, env.db, userID).Name)
}

func TestProfileLevel(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")
	testhelpers.CreateProfile(t, env.db, userID, testhelpers.WithXP(2250))

	w := env.do(t, http.MethodGet, "/api/v1/profile/level", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	level := decode[service.LevelProgress](t, w)
	assert.Equal(t, 3, level.Level)
	assert.Equal(t, 2250.0, level.CurrentXP)
}

func TestClaimUsernameAndListProducts(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")
	_, other := env.register(t, "bob@example.com")

	w := env.do(t, http.MethodPut, "/api/v1/profile/username", token, api.UsernameRequest{Username: "Ana_1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/api/v1/profile/username", other, api.UsernameRequest{Username: "ana_1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/profile/username", other, api.UsernameRequest{Username: "x!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/products", token, service.ProductInput{Name: "Granola", Calories: 450})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/users/ANA_1/products", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestWeights(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")

	for date, kg := range map[string]float64{"2024-05-01": 90, "2024-05-08": 88} {
		w := env.do(t, http.MethodPut, "/api/v1/weights/"+date, token, api.WeightRequest{Weight: kg})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/v1/weights", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 2)

	w = env.do(t, http.MethodGet, "/api/v1/weights/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[service.WeightStats](t, w)
	assert.Equal(t, 2, stats.Count)
	require.NotNil(t, stats.Change)
	assert.InDelta(t, -2.0, *stats.Change, 0.001)

	w = env.do(t, http.MethodDelete, "/api/v1/weights/2024-05-08", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	profile := testhelpers.ReloadProfile(t, env.db, userID)
	require.NotNil(t, profile.Weight)
	assert.Equal(t, 90.0, *profile.Weight)

	t.Run("rejects bad date", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/v1/weights/05-08-2024", token, api.WeightRequest{Weight: 80})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProgressReport(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")
	testhelpers.CreateProfile(t, env.db, userID, testhelpers.WithGoals(2000, 2500))

	w := env.do(t, http.MethodPost, "/api/v1/logs/2024-05-01/foods", token, service.FoodInput{Name: "Soup", Calories: 1800})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/progress?from=2024-05-01&to=2024-05-03", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[service.ProgressReport](t, w)
	require.NotNil(t, report.Deficit)
	assert.Equal(t, 700.0, report.Deficit.TotalDeficit)

	w = env.do(t, http.MethodGet, "/api/v1/progress?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
