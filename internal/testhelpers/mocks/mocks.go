package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/provider/openfoodfacts"
	"github.com/byefat/backend/internal/service"
)

// MockTokenValidator is a mock implementation of service.TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*service.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Identity), args.Error(1)
}

// MockPortionEstimator is a mock implementation of service.PortionEstimator
type MockPortionEstimator struct {
	mock.Mock
}

func (m *MockPortionEstimator) EstimatePortion(ctx context.Context, query string) (*service.PortionEstimate, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PortionEstimate), args.Error(1)
}

// MockImageEstimator is a mock implementation of service.ImageEstimator
type MockImageEstimator struct {
	mock.Mock
}

func (m *MockImageEstimator) AnalyzeImage(ctx context.Context, userID, image string) (*service.ImageEstimate, error) {
	args := m.Called(ctx, userID, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImageEstimate), args.Error(1)
}

// MockBarcodeService is a mock implementation of service.IBarcodeService
type MockBarcodeService struct {
	mock.Mock
}

func (m *MockBarcodeService) Lookup(ctx context.Context, barcode string) (*openfoodfacts.Product, error) {
	args := m.Called(ctx, barcode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openfoodfacts.Product), args.Error(1)
}

func (m *MockBarcodeService) SaveScanned(ctx context.Context, userID, barcode string) (*models.Product, bool, error) {
	args := m.Called(ctx, userID, barcode)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Product), args.Bool(1), args.Error(2)
}

var (
	_ service.TokenValidator   = (*MockTokenValidator)(nil)
	_ service.PortionEstimator = (*MockPortionEstimator)(nil)
	_ service.ImageEstimator   = (*MockImageEstimator)(nil)
	_ service.IBarcodeService  = (*MockBarcodeService)(nil)
)
