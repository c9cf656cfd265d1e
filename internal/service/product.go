package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/paul-mannino/go-fuzzywuzzy"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/byefat/backend/internal/models"
)

// minSearchScore is the fuzzy ratio a product needs to show up in search.
const minSearchScore = 60

// ProductInput carries per-100 g values.
type ProductInput struct {
	Name     string  `json:"name" binding:"required"`
	Brand    string  `json:"brand"`
	Calories float64 `json:"calories" binding:"gte=0"`
	Protein  float64 `json:"protein" binding:"gte=0"`
	Fat      float64 `json:"fat" binding:"gte=0"`
	Carbs    float64 `json:"carbs" binding:"gte=0"`
}

// IProductService defines the shared catalog operations
type IProductService interface {
	Create(ctx context.Context, userID string, in ProductInput) (*models.Product, error)
	Update(ctx context.Context, userID string, id uuid.UUID, in ProductInput) (*models.Product, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, limit int) ([]models.Product, error)
	Search(ctx context.Context, query string, limit int) ([]models.Product, error)
	ToggleLike(ctx context.Context, userID string, id uuid.UUID) (*models.Product, error)
	ListByCreator(ctx context.Context, username string) ([]models.Product, error)
}

type ProductService struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ IProductService = (*ProductService)(nil)

func NewProductService(db *gorm.DB, log *zap.Logger) *ProductService {
	return &ProductService{db: db, log: log.Named("product")}
}

func (s *ProductService) Create(ctx context.Context, userID string, in ProductInput) (*models.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}
	profile, err := s.creator(ctx, userID)
	if err != nil {
		return nil, err
	}

	product := models.Product{
		Name:            strings.TrimSpace(in.Name),
		Brand:           strings.TrimSpace(in.Brand),
		Calories:        in.Calories,
		Protein:         in.Protein,
		Fat:             in.Fat,
		Carbs:           in.Carbs,
		Source:          models.ProductSourceManual,
		CreatorID:       userID,
		CreatorUsername: *profile.Username,
		LikedBy:         datatypes.JSONSlice[string]{},
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ProductService) Update(ctx context.Context, userID string, id uuid.UUID, in ProductInput) (*models.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedProduct(tx, userID, id, &product); err != nil {
			return err
		}
		return tx.Model(&product).Updates(map[string]interface{}{
			"name":     strings.TrimSpace(in.Name),
			"brand":    strings.TrimSpace(in.Brand),
			"calories": in.Calories,
			"protein":  in.Protein,
			"fat":      in.Fat,
			"carbs":    in.Carbs,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a product. Log items keep their copied nutrition values.
func (s *ProductService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := ownedProduct(tx, userID, id, &product); err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
}

func (s *ProductService) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// List returns the most liked products first.
func (s *ProductService) List(ctx context.Context, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.WithContext(ctx).
		Order("likes DESC").Order("name ASC").
		Limit(normalizeLimit(limit)).
		Find(&products).Error
	return products, err
}

// Search ranks products by fuzzy similarity of the query to the name, the
// brand or both.
func (s *ProductService) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.List(ctx, limit)
	}

	var candidates []models.Product
	if err := s.db.WithContext(ctx).Find(&candidates).Error; err != nil {
		return nil, err
	}

	type scored struct {
		product models.Product
		score   int
	}
	var hits []scored
	for _, p := range candidates {
		name := strings.ToLower(p.Name)
		score := fuzzy.Ratio(query, name)
		if strings.Contains(name, query) {
			score = 100
		}
		if b := fuzzy.Ratio(query, strings.ToLower(p.Brand)); b > score {
			score = b
		}
		if c := fuzzy.Ratio(query, strings.ToLower(p.Brand+" "+p.Name)); c > score {
			score = c
		}
		if score >= minSearchScore {
			hits = append(hits, scored{p, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].product.Likes > hits[j].product.Likes
	})

	limit = normalizeLimit(limit)
	out := make([]models.Product, 0, limit)
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].product)
	}
	return out, nil
}

// ToggleLike adds the caller to LikedBy or removes them, keeping Likes in
// step with the set.
func (s *ProductService) ToggleLike(ctx context.Context, userID string, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row stays locked until commit so concurrent toggles serialize.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&product).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		likedBy := make(datatypes.JSONSlice[string], 0, len(product.LikedBy)+1)
		delta := 1
		for _, uid := range product.LikedBy {
			if uid == userID {
				delta = -1
				continue
			}
			likedBy = append(likedBy, uid)
		}
		if delta > 0 {
			likedBy = append(likedBy, userID)
		}

		likes := product.Likes + delta
		if likes < 0 {
			likes = 0
		}
		if err := tx.Model(&product).Updates(map[string]interface{}{
			"liked_by": likedBy,
			"likes":    likes,
		}).Error; err != nil {
			return err
		}
		product.LikedBy = likedBy
		product.Likes = likes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ProductService) ListByCreator(ctx context.Context, username string) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.WithContext(ctx).
		Where("creator_username = ?", strings.ToLower(username)).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

func (s *ProductService) creator(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if profile.Username == nil || *profile.Username == "" {
		return nil, ErrUsernameRequired
	}
	return &profile, nil
}

func ownedProduct(tx *gorm.DB, userID string, id uuid.UUID, out *models.Product) error {
	if err := tx.Where("id = ?", id).Take(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	if out.CreatorID != userID {
		return ErrNotProductOwner
	}
	return nil
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if in.Calories < 0 || in.Protein < 0 || in.Fat < 0 || in.Carbs < 0 {
		return fmt.Errorf("%w: nutrition values must not be negative", ErrInvalidInput)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
