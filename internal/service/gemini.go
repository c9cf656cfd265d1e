package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnresolvable means the model refused the query, e.g. a cooked
	// portion without raw nutrition values.
	ErrUnresolvable = errors.New("the query cannot be resolved")
	// ErrNoOutput means the model answered with nothing usable.
	ErrNoOutput = errors.New("The AI model could not calculate the nutritional information.")
	// ErrImageAnalysis covers every failure of the photo estimator.
	ErrImageAnalysis = errors.New("Failed to analyze food image.")
	// ErrEstimatorDisabled is returned when no API key is configured.
	ErrEstimatorDisabled = errors.New("AI estimation is not configured")
)

const (
	unresolvablePrefix = "ERROR:"
	imageURLExpiry     = 7 * 24 * time.Hour
)

const portionPrompt = `You are a nutritional calculator assistant. Your task is to analyze the user's text and return nutritional information as a structured JSON object.

The user can provide two types of queries:

1. Simple Food Lookup: the user provides a food item and its weight (e.g. "200g apple", "150 grams of grilled chicken breast").
2. Complex Portion Calculation: the user provides details about cooking, including nutritional values for the raw product, the raw weight, the cooked weight and the final portion they ate.

First determine the query type.

For a Simple Food Lookup:
1. Identify the food item and its weight in grams.
2. Use general knowledge to find approximate calories, protein, fat and carbs for that amount.
3. Write a short description (e.g. "Apple"). portionWeight is the weight the user gave.

For a Complex Portion Calculation:
1. Check whether the text includes the nutritional values of the raw product (e.g. "per 100g raw is 350 kcal, 12g protein").
2. If they are missing, stop and return a JSON object where every number is 0 and description is "ERROR: Missing nutritional values for the raw product.".
3. Otherwise:
   a. Take the nutrients per 100g of the raw product.
   b. Take the total raw weight.
   c. Take the total cooked weight.
   d. Take the weight of the portion eaten. This is portionWeight.
   e. Total nutrients = per 100g * raw weight / 100.
   f. Cooked density = total nutrients / cooked weight.
   g. Portion nutrients = cooked density * portionWeight.
   h. Write a short description of the meal.

Respond only with JSON of the form
{"description": string, "portionWeight": number, "calories": number, "protein": number, "fat": number, "carbs": number, "salt": number}
and no other text.

Query: %s`

const imagePrompt = `Analyze this image of food. Identify the dish and estimate the serving size.
Return ONLY a valid JSON object (no markdown formatting, no code blocks) with this structure:
{
  "name": "string (dish name)",
  "calories": number (estimated total calories),
  "protein_g": number (estimated protein in grams),
  "carbs_g": number (estimated carbs in grams),
  "fats_g": number (estimated fats in grams),
  "quantity_g": number (estimated weight in grams)
}`

// PortionEstimate is the nutrition of the portion a user described.
type PortionEstimate struct {
	Description   string   `json:"description"`
	PortionWeight float64  `json:"portionWeight"`
	Calories      float64  `json:"calories"`
	Protein       float64  `json:"protein"`
	Fat           float64  `json:"fat"`
	Carbs         float64  `json:"carbs"`
	Salt          *float64 `json:"salt,omitempty"`
}

// ImageEstimate holds the model's totals for the photographed serving and
// the same values normalized to 100 g.
type ImageEstimate struct {
	Name      string  `json:"name"`
	Calories  float64 `json:"calories"`
	ProteinG  float64 `json:"protein_g"`
	CarbsG    float64 `json:"carbs_g"`
	FatsG     float64 `json:"fats_g"`
	QuantityG float64 `json:"quantity_g"`

	CaloriesPer100g float64 `json:"calories_per_100g"`
	ProteinPer100g  float64 `json:"protein_per_100g"`
	CarbsPer100g    float64 `json:"carbs_per_100g"`
	FatPer100g      float64 `json:"fat_per_100g"`

	ImageURL string `json:"image_url,omitempty"`
}

type PortionEstimator interface {
	EstimatePortion(ctx context.Context, query string) (*PortionEstimate, error)
}

type ImageEstimator interface {
	AnalyzeImage(ctx context.Context, userID, image string) (*ImageEstimate, error)
}

// ImageStore keeps uploaded scan photos. config.S3Config implements it.
type ImageStore interface {
	PutImage(ctx context.Context, key string, body []byte, contentType string, expiration time.Duration) (string, error)
}

// GeminiConfig configures the generateContent client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxAttempts int
	Backoff     time.Duration
	HTTPClient  *http.Client
}

// GeminiService estimates nutrition through the Gemini REST API.
type GeminiService struct {
	cfg    GeminiConfig
	images ImageStore
	log    *zap.Logger
}

var (
	_ PortionEstimator = (*GeminiService)(nil)
	_ ImageEstimator   = (*GeminiService)(nil)
)

// NewGeminiService builds the estimator. images may be nil.
func NewGeminiService(cfg GeminiConfig, images ImageStore, log *zap.Logger) *GeminiService {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &GeminiService{cfg: cfg, images: images, log: log.Named("gemini")}
}

func (s *GeminiService) EstimatePortion(ctx context.Context, query string) (*PortionEstimate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	text, err := s.generate(ctx, []geminiPart{{Text: fmt.Sprintf(portionPrompt, query)}})
	if err != nil {
		return nil, err
	}
	text = stripFences(text)
	if text == "" {
		return nil, ErrNoOutput
	}

	var est PortionEstimate
	if err := json.Unmarshal([]byte(text), &est); err != nil {
		s.log.Warn("unparseable portion estimate", zap.String("output", text), zap.Error(err))
		return nil, ErrNoOutput
	}
	if strings.HasPrefix(strings.TrimSpace(est.Description), unresolvablePrefix) {
		msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(est.Description), unresolvablePrefix))
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, msg)
	}
	return &est, nil
}

// AnalyzeImage estimates the dish in a base64 photo. A data-URL prefix is
// accepted.
func (s *GeminiService) AnalyzeImage(ctx context.Context, userID, image string) (*ImageEstimate, error) {
	data, mime := splitDataURL(image)
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: image must be base64 encoded", ErrInvalidInput)
	}

	text, err := s.generate(ctx, []geminiPart{
		{Text: imagePrompt},
		{InlineData: &geminiBlob{MimeType: mime, Data: data}},
	})
	if err != nil {
		if errors.Is(err, ErrEstimatorDisabled) {
			return nil, err
		}
		s.log.Error("image analysis failed", zap.Error(err))
		return nil, ErrImageAnalysis
	}

	var est ImageEstimate
	if err := json.Unmarshal([]byte(stripFences(text)), &est); err != nil {
		s.log.Warn("unparseable image estimate", zap.String("output", text), zap.Error(err))
		return nil, ErrImageAnalysis
	}
	est.CaloriesPer100g = per100(est.Calories, est.QuantityG)
	est.ProteinPer100g = per100(est.ProteinG, est.QuantityG)
	est.CarbsPer100g = per100(est.CarbsG, est.QuantityG)
	est.FatPer100g = per100(est.FatsG, est.QuantityG)

	if s.images != nil {
		key := fmt.Sprintf("scans/%s/%s%s", userID, uuid.NewString(), extensionFor(mime))
		url, err := s.images.PutImage(ctx, key, raw, mime, imageURLExpiry)
		if err != nil {
			s.log.Warn("failed to store scan image", zap.String("user_id", userID), zap.Error(err))
		} else {
			est.ImageURL = url
		}
	}
	return &est, nil
}

// per100 converts a serving total to a per-100 g value.
func per100(value, quantity float64) float64 {
	if quantity == 0 {
		return 0
	}
	return math.Round(value / quantity * 100)
}

func splitDataURL(image string) (data, mime string) {
	image = strings.TrimSpace(image)
	mime = "image/jpeg"
	header, payload, ok := strings.Cut(image, ",")
	if !ok {
		return image, mime
	}
	if strings.HasPrefix(header, "data:") {
		if m, _, found := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); found && m != "" {
			mime = m
		}
	}
	return payload, mime
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// retryableError marks failures worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// generate calls generateContent, retrying throttling, server errors and
// transport failures.
func (s *GeminiService) generate(ctx context.Context, parts []geminiPart) (string, error) {
	if s.cfg.APIKey == "" {
		return "", ErrEstimatorDisabled
	}

	var req geminiRequest
	req.Contents = []geminiContent{{Role: "user", Parts: parts}}
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.Temperature = 0.2
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		text, err := s.call(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		var retry retryableError
		if !errors.As(err, &retry) || attempt == s.cfg.MaxAttempts {
			break
		}
		s.log.Warn("gemini call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * s.cfg.Backoff):
		}
	}
	return "", lastErr
}

func (s *GeminiService) call(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.cfg.APIKey)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", retryableError{fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retryableError{fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retryableError{err}
		}
		return "", err
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", ErrNoOutput
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
