package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/logger"
	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/provider/openfoodfacts"
	"github.com/byefat/backend/internal/router"
	"github.com/byefat/backend/internal/service"
)

func TestProductLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	_, owner := env.register(t, "ana@example.com")
	_, other := env.register(t, "bob@example.com")

	w := env.do(t, http.MethodPost, "/api/v1/products", owner, service.ProductInput{Name: "Granola", Calories: 450})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "publishing needs a username")

	w = env.do(t, http.MethodPut, "/api/v1/profile/username", owner, map[string]string{"username": "ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/products", owner, service.ProductInput{Name: "Granola", Calories: 450, Protein: 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	product := decode[models.Product](t, w)
	assert.Equal(t, "ana", product.CreatorUsername)

	path := "/api/v1/products/" + product.ID.String()

	w = env.do(t, http.MethodPut, path, other, service.ProductInput{Name: "Hijacked", Calories: 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, path, owner, service.ProductInput{Name: "Granola Honey", Calories: 470})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Granola Honey", decode[models.Product](t, w).Name)

	w = env.do(t, http.MethodPost, path+"/like", other, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	liked := decode[struct {
		Product models.Product `json:"product"`
		Liked   bool           `json:"liked"`
	}](t, w)
	assert.True(t, liked.Liked)
	assert.Equal(t, 1, liked.Product.Likes)

	w = env.do(t, http.MethodGet, "/api/v1/products?q=granola&limit=5", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Product](t, w), 1)

	w = env.do(t, http.MethodDelete, path, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, path, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBarcodeLookup(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	nutella := &openfoodfacts.Product{
		Barcode: "3017620422003", Name: "Nutella", Brand: "Ferrero",
		CaloriesPer100g: 539, ProteinPer100g: 6.3, FatPer100g: 30.9, CarbsPer100g: 57.5,
	}
	env.barcodes.On("Lookup", mock.Anything, "3017620422003").Return(nutella, nil).Once()
	env.barcodes.On("Lookup", mock.Anything, "12ab").Return(nil, openfoodfacts.ErrInvalidBarcode).Once()
	env.barcodes.On("Lookup", mock.Anything, "0000000000000").
		Return(nil, fmt.Errorf("lookup 0000000000000: %w", &openfoodfacts.StatusError{Code: 404})).Twice()
	env.barcodes.On("Lookup", mock.Anything, "5449000000996").
		Return(nil, fmt.Errorf("%w: connection refused", openfoodfacts.ErrFetch)).Once()

	w := env.do(t, http.MethodGet, "/api/v1/barcode/3017620422003", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Nutella", decode[openfoodfacts.Product](t, w).Name)

	w = env.do(t, http.MethodGet, "/api/v1/barcode/12ab", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/barcode/0000000000000", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found (status: 404).", errorMessage(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/barcode/0000000000000", token, nil, "Accept-Language", "ro-RO,ro;q=0.9")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Produsul nu a fost găsit (status: 404).", errorMessage(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/barcode/5449000000996", token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestBarcodeSave(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")

	code := "3017620422003"
	saved := &models.Product{Name: "Nutella", Barcode: &code, CreatorID: userID}
	env.barcodes.On("SaveScanned", mock.Anything, userID, "3017620422003").Return(saved, true, nil).Once()
	env.barcodes.On("SaveScanned", mock.Anything, userID, "3017620422003").Return(saved, false, nil).Once()

	w := env.do(t, http.MethodPost, "/api/v1/barcode/3017620422003/save", token, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/barcode/3017620422003/save", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEstimatePortion(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	env.portions.On("EstimatePortion", mock.Anything, "a bowl of oats").
		Return(&service.PortionEstimate{Description: "Oats", PortionWeight: 80, Calories: 300}, nil).Once()
	env.portions.On("EstimatePortion", mock.Anything, "asdf").
		Return(nil, service.ErrUnresolvable).Once()

	w := env.do(t, http.MethodPost, "/api/v1/ai/portion", token, map[string]string{"query": "a bowl of oats"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 300.0, decode[service.PortionEstimate](t, w).Calories)

	w = env.do(t, http.MethodPost, "/api/v1/ai/portion", token, map[string]string{"query": "asdf"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/ai/portion", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeImage(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.register(t, "ana@example.com")

	env.images.On("AnalyzeImage", mock.Anything, userID, "aGVsbG8=").
		Return(&service.ImageEstimate{Name: "Toast", Calories: 133, QuantityG: 50, CaloriesPer100g: 266}, nil).Once()
	env.images.On("AnalyzeImage", mock.Anything, userID, "Ym9ndXM=").
		Return(nil, service.ErrImageAnalysis).Once()

	w := env.do(t, http.MethodPost, "/api/v1/ai/image", token, map[string]string{"image": "aGVsbG8="})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 266.0, decode[service.ImageEstimate](t, w).CaloriesPer100g)

	w = env.do(t, http.MethodPost, "/api/v1/ai/image", token, map[string]string{"image": "Ym9ndXM="}, "Accept-Language", "ro")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Analiza imaginii a eșuat.", errorMessage(t, w))
}

func TestAIQuotaWithoutLimiter(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/ai/quota", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["limited"])
}

func TestAIDisabledWithoutKey(t *testing.T) {
	gemini := service.NewGeminiService(service.GeminiConfig{}, nil, zap.NewNop())
	env := setupTestEnv(t, func(d *router.Deps) {
		d.Portions = gemini
		d.Images = gemini
	})
	_, token := env.register(t, "ana@example.com")

	w := env.do(t, http.MethodPost, "/api/v1/ai/portion", token, map[string]string{"query": "an apple"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, service.ErrEstimatorDisabled.Error(), errorMessage(t, w))
}

func TestErrorsAreLocalized(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	tests := []struct {
		lang string
		want string
	}{
		{"", service.ErrInvalidDate.Error()},
		{"en-US", service.ErrInvalidDate.Error()},
		{"ro", "Data trebuie să fie în formatul AAAA-LL-ZZ."},
		{"ro-RO,en;q=0.5", "Data trebuie să fie în formatul AAAA-LL-ZZ."},
		{"fr-FR", service.ErrInvalidDate.Error()},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("lang=%q", tt.lang), func(t *testing.T) {
			var headers []string
			if tt.lang != "" {
				headers = []string{"Accept-Language", tt.lang}
			}
			w := env.do(t, http.MethodGet, "/api/v1/logs/not-a-date", token, nil, headers...)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, errorMessage(t, w))
		})
	}
}

func TestUnexpectedErrorsHideDetail(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	env.barcodes.On("Lookup", mock.Anything, "4006381333931").
		Return(nil, errors.New("pq: connection reset by peer")).Once()

	w := env.do(t, http.MethodGet, "/api/v1/barcode/4006381333931", token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorMessage(t, w))
}

func TestWrappedErrorsAreLocalized(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.register(t, "ana@example.com")

	unresolvable := fmt.Errorf("%w: Missing nutritional values in AI response", service.ErrUnresolvable)
	env.portions.On("EstimatePortion", mock.Anything, "qwerty").Return(nil, unresolvable).Twice()

	t.Run("ai error in romanian", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/ai/portion", token, map[string]string{"query": "qwerty"}, "Accept-Language", "ro")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "Cererea nu poate fi interpretată ca un aliment.", errorMessage(t, w))
	})

	t.Run("ai error in english keeps detail", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/ai/portion", token, map[string]string{"query": "qwerty"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, unresolvable.Error(), errorMessage(t, w))
	})

	t.Run("invalid food in romanian", func(t *testing.T) {
		body := service.FoodInput{Name: "Soup", Calories: -10}
		w := env.do(t, http.MethodPost, "/api/v1/logs/2024-05-10/foods", token, body, "Accept-Language", "ro")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Date invalide.", errorMessage(t, w))
	})
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingReporter) Report(op, userID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+":"+userID)
}

var _ logger.PermissionReporter = (*recordingReporter)(nil)

func TestPermissionErrorsAreReported(t *testing.T) {
	reporter := &recordingReporter{}
	env := setupTestEnv(t, func(d *router.Deps) { d.Reporter = reporter })
	userID, token := env.register(t, "ana@example.com")

	env.barcodes.On("SaveScanned", mock.Anything, userID, "3017620422003").
		Return(nil, false, fmt.Errorf("save product: %w", service.ErrPermissionDenied)).Once()
	env.barcodes.On("Lookup", mock.Anything, "3017620422003").
		Return(nil, openfoodfacts.ErrNotFound).Once()

	w := env.do(t, http.MethodPost, "/api/v1/barcode/3017620422003/save", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/barcode/3017620422003", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []string{"POST /api/v1/barcode/:code/save:" + userID}, reporter.calls)
}
