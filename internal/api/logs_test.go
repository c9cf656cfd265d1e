package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byefat/backend/internal/api"
	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/service"
	"github.com/byefat/backend/internal/testhelpers"
)

const logDate = "2024-05-10"

func TestFoodLogLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")
	testhelpers.CreateProfile(t, env.db, userID, testhelpers.WithGoals(2000, 2500))

	product := models.Product{Name: "Cereal", Calories: 250, Protein: 8, Fat: 3, Carbs: 50, CreatorID: "someone"}
	require.NoError(t, env.db.Create(&product).Error)

	base := "/api/v1/logs/" + logDate

	w := env.do(t, http.MethodPost, base+"/foods", token, service.FoodInput{Name: "Pasta", Calories: 500, Protein: 18})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	manual := decode[models.FoodLogItem](t, w)

	w = env.do(t, http.MethodPost, base+"/foods", token, service.FoodInput{ProductID: &product.ID, Grams: 200})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	scanned := decode[models.FoodLogItem](t, w)
	assert.Equal(t, 500.0, scanned.Calories)

	w = env.do(t, http.MethodPatch, base+"/foods/"+scanned.ID.String(), token, api.GramsRequest{Grams: 280})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 700.0, decode[models.FoodLogItem](t, w).Calories)

	w = env.do(t, http.MethodDelete, base+"/foods/"+manual.ID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	day := decode[api.DayResponse](t, w)
	assert.Equal(t, 700.0, day.Totals.ConsumedCalories)
	assert.Len(t, day.Items, 1)
	assert.Nil(t, day.Drift)

	assert.Equal(t, 700.0, testhelpers.ReloadDay(t, env.db, userID, logDate).ConsumedCalories)
}

func TestFoodLogRejectsBadInput(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")
	base := "/api/v1/logs/" + logDate

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed date", http.MethodGet, "/api/v1/logs/10-05-2024", nil, http.StatusBadRequest},
		{"missing name", http.MethodPost, base + "/foods", service.FoodInput{Calories: 100}, http.StatusBadRequest},
		{"bad item id", http.MethodPatch, base + "/foods/abc", api.GramsRequest{Grams: 10}, http.StatusBadRequest},
		{"zero grams", http.MethodPatch, base + "/foods/3f1c1d5e-7a3c-4b0e-9d61-2a5b0c9e8f11", api.GramsRequest{}, http.StatusBadRequest},
		{"unknown item", http.MethodDelete, base + "/foods/3f1c1d5e-7a3c-4b0e-9d61-2a5b0c9e8f11", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, errorMessage(t, w))
		})
	}
}

func TestActivityLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")
	base := "/api/v1/logs/" + logDate

	w := env.do(t, http.MethodPost, base+"/activities", token, service.ActivityInput{Name: "Run", Calories: 300})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	item := decode[models.ActivityLogItem](t, w)

	w = env.do(t, http.MethodPatch, base+"/activities/"+item.ID.String(), token, service.ActivityInput{Name: "Long run", Calories: 450})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 450.0, testhelpers.ReloadDay(t, env.db, userID, logDate).ActiveCalories)

	w = env.do(t, http.MethodDelete, base+"/activities/"+item.ID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0.0, testhelpers.ReloadDay(t, env.db, userID, logDate).ActiveCalories)
}

func TestGetDayReconcilesOnRequest(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")
	base := "/api/v1/logs/" + logDate

	w := env.do(t, http.MethodPost, base+"/foods", token, service.FoodInput{Name: "Soup", Calories: 300})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NoError(t, env.db.Model(&models.DailyLog{}).
		Where("user_id = ? AND date = ?", userID, logDate).
		Update("consumed_calories", 999).Error)

	w = env.do(t, http.MethodGet, base+"?reconcile=true", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	day := decode[api.DayResponse](t, w)
	require.NotNil(t, day.Drift)
	assert.Equal(t, 999.0, day.Drift.StoredConsumed)
	assert.Equal(t, 300.0, day.Drift.ComputedConsumed)
	assert.True(t, day.Drift.Fixed)
	assert.Equal(t, 300.0, day.Log.ConsumedCalories)
}

func TestGetDayWithoutLog(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")
	testhelpers.CreateProfile(t, env.db, userID, testhelpers.WithGoals(2000, 2500))

	w := env.do(t, http.MethodGet, "/api/v1/logs/"+logDate+"?tz=Europe/Bucharest", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	day := decode[api.DayResponse](t, w)
	assert.Nil(t, day.Log)
	assert.Equal(t, 0.0, day.Totals.ConsumedCalories)
	require.NotNil(t, day.Goals.Calories)
	assert.Equal(t, 2000.0, *day.Goals.Calories)
}

func TestStreamDayPushesSnapshots(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/logs/"+logDate+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	next := func() service.DaySnapshot {
		t.Helper()
		var event string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:") && event == "snapshot":
				var snap service.DaySnapshot
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &snap))
				return snap
			}
		}
	}

	first := next()
	assert.Equal(t, 0.0, first.Totals.ConsumedCalories)

	w := env.do(t, http.MethodPost, "/api/v1/logs/"+logDate+"/foods", token, service.FoodInput{Name: "Apple", Calories: 95})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	second := next()
	assert.Equal(t, 95.0, second.Totals.ConsumedCalories)
}
