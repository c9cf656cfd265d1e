package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/provider/openfoodfacts"
)

const (
	barcodeCacheTTL    = 24 * time.Hour
	barcodeCachePrefix = "byefat:barcode:"
)

// BarcodeLookup resolves a barcode against an external product database.
type BarcodeLookup interface {
	LookupBarcode(ctx context.Context, barcode string) (openfoodfacts.Product, error)
}

// IBarcodeService defines the barcode scan operations
type IBarcodeService interface {
	Lookup(ctx context.Context, barcode string) (*openfoodfacts.Product, error)
	SaveScanned(ctx context.Context, userID, barcode string) (*models.Product, bool, error)
}

type BarcodeService struct {
	db     *gorm.DB
	lookup BarcodeLookup
	cache  *redis.Client
	log    *zap.Logger
}

var _ IBarcodeService = (*BarcodeService)(nil)

// NewBarcodeService builds the service. cache may be nil.
func NewBarcodeService(db *gorm.DB, lookup BarcodeLookup, cache *redis.Client, log *zap.Logger) *BarcodeService {
	return &BarcodeService{db: db, lookup: lookup, cache: cache, log: log.Named("barcode")}
}

// Lookup returns per-100 g nutrition for barcode. Successful answers are
// cached for a day; errors are never cached.
func (s *BarcodeService) Lookup(ctx context.Context, barcode string) (*openfoodfacts.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if !openfoodfacts.ValidBarcode(barcode) {
		return nil, openfoodfacts.ErrInvalidBarcode
	}

	if p, ok := s.cached(ctx, barcode); ok {
		return p, nil
	}

	p, err := s.lookup.LookupBarcode(ctx, barcode)
	if err != nil {
		s.log.Info("barcode lookup failed", zap.String("barcode", barcode), zap.Error(err))
		return nil, err
	}
	s.store(ctx, barcode, p)
	return &p, nil
}

// SaveScanned adds the scanned product to the shared catalog, or returns the
// entry that already carries this barcode. The bool reports whether a new
// product was created.
func (s *BarcodeService) SaveScanned(ctx context.Context, userID, barcode string) (*models.Product, bool, error) {
	barcode = strings.TrimSpace(barcode)
	if !openfoodfacts.ValidBarcode(barcode) {
		return nil, false, openfoodfacts.ErrInvalidBarcode
	}

	var existing models.Product
	err := s.db.WithContext(ctx).Where("barcode = ?", barcode).Take(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	scanned, err := s.Lookup(ctx, barcode)
	if err != nil {
		return nil, false, err
	}

	var username string
	var profile models.UserProfile
	if err := s.db.WithContext(ctx).Select("user_id", "username").Where("user_id = ?", userID).Take(&profile).Error; err == nil && profile.Username != nil {
		username = *profile.Username
	}

	code := barcode
	product := models.Product{
		Name:            scanned.Name,
		Brand:           scanned.Brand,
		Barcode:         &code,
		Calories:        scanned.CaloriesPer100g,
		Protein:         scanned.ProteinPer100g,
		Fat:             scanned.FatPer100g,
		Carbs:           scanned.CarbsPer100g,
		Source:          models.ProductSourceScanned,
		CreatorID:       userID,
		CreatorUsername: username,
		Likes:           1,
		LikedBy:         datatypes.JSONSlice[string]{userID},
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		if isUniqueViolation(err) {
			// Another scan of the same code won the race.
			if err := s.db.WithContext(ctx).Where("barcode = ?", barcode).Take(&existing).Error; err != nil {
				return nil, false, err
			}
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &product, true, nil
}

func (s *BarcodeService) cached(ctx context.Context, barcode string) (*openfoodfacts.Product, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, barcodeCachePrefix+barcode).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("barcode cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var p openfoodfacts.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (s *BarcodeService) store(ctx context.Context, barcode string, p openfoodfacts.Product) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, barcodeCachePrefix+barcode, raw, barcodeCacheTTL).Err(); err != nil {
		s.log.Warn("barcode cache write failed", zap.Error(err))
	}
}
