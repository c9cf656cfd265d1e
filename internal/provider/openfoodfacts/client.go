package openfoodfacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://world.openfoodfacts.org"
	defaultUserAgent = "byeFat-Backend - Go - Version 1.0"
	unknownBrand     = "Unknown Brand"
)

var barcodePattern = regexp.MustCompile(`^\d+$`)

// Lookup failures. Their messages are shown to end users as-is.
var (
	ErrInvalidBarcode = errors.New("Invalid barcode format.")
	ErrNotFound       = errors.New("Product not found in Open Food Facts database.")
	ErrIncomplete     = errors.New("Incomplete product data from API.")
	ErrNoNutrition    = errors.New("Product found, but nutritional information is missing.")
	ErrFetch          = errors.New("Failed to fetch product data.")
)

// StatusError reports a non-2xx answer from the API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Product not found (status: %d).", e.Code)
}

// Product holds per-100 g nutrition of a scanned item.
type Product struct {
	Barcode         string  `json:"barcode"`
	Name            string  `json:"name"`
	Brand           string  `json:"brand"`
	CaloriesPer100g float64 `json:"calories_per_100g"`
	ProteinPer100g  float64 `json:"protein_per_100g"`
	FatPer100g      float64 `json:"fat_per_100g"`
	CarbsPer100g    float64 `json:"carbs_per_100g"`
}

type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// ValidBarcode reports whether code is a non-empty string of digits.
func ValidBarcode(code string) bool {
	return barcodePattern.MatchString(code)
}

func (c *Client) LookupBarcode(ctx context.Context, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	if !ValidBarcode(barcode) {
		return Product{}, ErrInvalidBarcode
	}

	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	ua := c.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	url := fmt.Sprintf("%s/api/v2/product/%s.json", base, barcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Product{}, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := httpClient.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Product{}, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Product{}, fmt.Errorf("%w: read response: %v", ErrFetch, err)
	}

	var parsed offResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Product{}, ErrNotFound
	}
	if parsed.Status == 0 || parsed.Product == nil {
		return Product{}, ErrNotFound
	}

	p := parsed.Product
	name := strings.TrimSpace(p.ProductNameEN)
	if name == "" {
		name = strings.TrimSpace(p.ProductName)
	}
	if name == "" || p.Nutriments == nil {
		return Product{}, ErrIncomplete
	}

	brand := strings.TrimSpace(p.Brands)
	if brand == "" {
		brand = unknownBrand
	}

	out := Product{
		Barcode:         barcode,
		Name:            name,
		Brand:           brand,
		CaloriesPer100g: per100g(p.Nutriments, "energy-kcal"),
		ProteinPer100g:  per100g(p.Nutriments, "proteins"),
		FatPer100g:      per100g(p.Nutriments, "fat"),
		CarbsPer100g:    per100g(p.Nutriments, "carbohydrates"),
	}
	if out.CaloriesPer100g == 0 && out.ProteinPer100g == 0 {
		return Product{}, ErrNoNutrition
	}
	return out, nil
}

// UserMessage maps a lookup error to the text shown to users.
func UserMessage(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, ErrInvalidBarcode):
		return ErrInvalidBarcode.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrIncomplete):
		return ErrIncomplete.Error()
	case errors.Is(err, ErrNoNutrition):
		return ErrNoNutrition.Error()
	default:
		return ErrFetch.Error()
	}
}

func per100g(n map[string]any, base string) float64 {
	if v, ok := parseFloatAny(n[base+"_100g"]); ok {
		return v
	}
	return 0
}

func parseFloatAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

type offResponse struct {
	Status  int         `json:"status"`
	Product *offProduct `json:"product"`
}

type offProduct struct {
	ProductName   string         `json:"product_name"`
	ProductNameEN string         `json:"product_name_en"`
	Brands        string         `json:"brands"`
	Nutriments    map[string]any `json:"nutriments"`
}
