package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/byefat/backend/internal/logger"
	"github.com/byefat/backend/internal/models"
)

// Meal buckets derived from the hour an item was logged.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// FoodInput adds a food either from a catalog product (ProductID and Grams)
// or with explicit totals (Name and the macro fields).
type FoodInput struct {
	ProductID *uuid.UUID `json:"product_id"`
	Grams     float64    `json:"grams"`
	Name      string     `json:"name"`
	Calories  float64    `json:"calories"`
	Protein   float64    `json:"protein"`
	Fat       float64    `json:"fat"`
	Carbs     float64    `json:"carbs"`
	Source    string     `json:"source"`
}

type ActivityInput struct {
	Name     string  `json:"name" binding:"required"`
	Calories float64 `json:"calories" binding:"gte=0"`
}

// Goals are the effective targets of a day.
type Goals struct {
	Calories            *float64 `json:"calories"`
	Protein             *float64 `json:"protein"`
	Carbs               *float64 `json:"carbs"`
	Fat                 *float64 `json:"fat"`
	MaintenanceCalories *float64 `json:"maintenance_calories"`
	DeficitTarget       *float64 `json:"deficit_target"`
}

// DaySnapshot is everything a client needs to render one day.
type DaySnapshot struct {
	Date       string                          `json:"date"`
	Log        *models.DailyLog                `json:"log"`
	Goals      Goals                           `json:"goals"`
	Items      []models.FoodLogItem            `json:"items"`
	Activities []models.ActivityLogItem        `json:"activities"`
	Totals     Totals                          `json:"totals"`
	Balance    DeficitResult                   `json:"balance"`
	Meals      map[string][]models.FoodLogItem `json:"meals"`
}

// ILogService defines the per-day log operations
type ILogService interface {
	GetDay(ctx context.Context, userID, date string, loc *time.Location) (*DaySnapshot, error)
	AddFood(ctx context.Context, userID, date string, in FoodInput) (*models.FoodLogItem, error)
	UpdateFoodGrams(ctx context.Context, userID, date string, id uuid.UUID, grams float64) (*models.FoodLogItem, error)
	DeleteFood(ctx context.Context, userID, date string, id uuid.UUID) error
	AddActivity(ctx context.Context, userID, date string, in ActivityInput) (*models.ActivityLogItem, error)
	UpdateActivity(ctx context.Context, userID, date string, id uuid.UUID, in ActivityInput) (*models.ActivityLogItem, error)
	DeleteActivity(ctx context.Context, userID, date string, id uuid.UUID) error
}

// LogService writes items and their day counters in one transaction. The xp
// consequence of each write is handed to the dispatcher afterwards.
type LogService struct {
	db         *gorm.DB
	ledger     IXPLedger
	dispatcher *Dispatcher
	notifier   Notifier
	reporter   logger.PermissionReporter
	log        *zap.Logger
}

var _ ILogService = (*LogService)(nil)

func NewLogService(db *gorm.DB, ledger IXPLedger, dispatcher *Dispatcher, notifier Notifier, log *zap.Logger) *LogService {
	return &LogService{
		db:         db,
		ledger:     ledger,
		dispatcher: dispatcher,
		notifier:   notifier,
		log:        log.Named("dailylog"),
	}
}

// WithReporter routes permission denials hit while flagging days to r.
func (s *LogService) WithReporter(r logger.PermissionReporter) *LogService {
	s.reporter = r
	return s
}

func (s *LogService) GetDay(ctx context.Context, userID, date string, loc *time.Location) (*DaySnapshot, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	db := s.db.WithContext(ctx)

	var profile *models.UserProfile
	var p models.UserProfile
	if err := db.Where("user_id = ?", userID).Take(&p).Error; err == nil {
		profile = &p
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var day *models.DailyLog
	var d models.DailyLog
	if err := db.Where("user_id = ? AND date = ?", userID, date).Take(&d).Error; err == nil {
		day = &d
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	items := []models.FoodLogItem{}
	if err := db.Where("user_id = ? AND date = ?", userID, date).
		Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	activities := []models.ActivityLogItem{}
	if err := db.Where("user_id = ? AND date = ?", userID, date).
		Order("created_at DESC").Find(&activities).Error; err != nil {
		return nil, err
	}

	goals := resolveGoals(day, profile)
	totals := Aggregate(items, activities)

	var dailyCalories float64
	if goals.Calories != nil {
		dailyCalories = *goals.Calories
	}
	balance := CalculateDeficit(DeficitInput{
		MaintenanceCalories: goals.MaintenanceCalories,
		DailyCalories:       dailyCalories,
		ActiveCalories:      totals.ActiveCalories,
		ConsumedCalories:    totals.ConsumedCalories,
		DeficitTarget:       goals.DeficitTarget,
	})

	meals := map[string][]models.FoodLogItem{
		MealBreakfast: {},
		MealLunch:     {},
		MealDinner:    {},
		MealSnack:     {},
	}
	for _, it := range items {
		m := MealForTime(it.CreatedAt.In(loc))
		meals[m] = append(meals[m], it)
	}

	return &DaySnapshot{
		Date:       date,
		Log:        day,
		Goals:      goals,
		Items:      items,
		Activities: activities,
		Totals:     totals,
		Balance:    balance,
		Meals:      meals,
	}, nil
}

// resolveGoals prefers the day's snapshot over the profile.
func resolveGoals(day *models.DailyLog, profile *models.UserProfile) Goals {
	var g Goals
	if day != nil {
		g = Goals{
			Calories:            day.GoalCalories,
			Protein:             day.GoalProtein,
			Carbs:               day.GoalCarbs,
			Fat:                 day.GoalFat,
			MaintenanceCalories: day.MaintenanceCalories,
			DeficitTarget:       day.DeficitTarget,
		}
	}
	if profile != nil {
		g.Calories = firstSet(g.Calories, profile.DailyCalories)
		g.Protein = firstSet(g.Protein, profile.DailyProtein)
		g.Carbs = firstSet(g.Carbs, profile.DailyCarbs)
		g.Fat = firstSet(g.Fat, profile.DailyFat)
		g.MaintenanceCalories = firstSet(g.MaintenanceCalories, profile.MaintenanceCalories)
		g.DeficitTarget = firstSet(g.DeficitTarget, profile.DeficitTarget)
	}
	return g
}

// MealForTime buckets a local time: breakfast 04-11, lunch 11-16, dinner
// 16-22, snack otherwise.
func MealForTime(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 4 && h < 11:
		return MealBreakfast
	case h >= 11 && h < 16:
		return MealLunch
	case h >= 16 && h < 22:
		return MealDinner
	default:
		return MealSnack
	}
}

func (s *LogService) AddFood(ctx context.Context, userID, date string, in FoodInput) (*models.FoodLogItem, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}

	item := models.FoodLogItem{UserID: userID, Date: date}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ProductID != nil {
			if in.Grams <= 0 {
				return fmt.Errorf("%w: grams must be positive", ErrInvalidInput)
			}
			var product models.Product
			if err := tx.Where("id = ?", *in.ProductID).Take(&product).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrProductNotFound
				}
				return err
			}
			m := PortionMacros(&product, in.Grams)
			item.ProductID = &product.ID
			item.ProductName = product.Name
			item.Grams = in.Grams
			item.Calories, item.Protein, item.Fat, item.Carbs = m.Calories, m.Protein, m.Fat, m.Carbs
			item.Source = models.SourceProduct
			if in.Source == models.SourceBarcode {
				item.Source = models.SourceBarcode
			}
		} else {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidInput)
			}
			if in.Calories < 0 || in.Protein < 0 || in.Fat < 0 || in.Carbs < 0 || in.Grams < 0 {
				return fmt.Errorf("%w: values must not be negative", ErrInvalidInput)
			}
			source := in.Source
			switch source {
			case "":
				source = models.SourceManual
			case models.SourceManual, models.SourceAI, models.SourceBarcode:
			default:
				return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, in.Source)
			}
			item.ProductName = name
			item.Grams = in.Grams
			item.Calories, item.Protein, item.Fat, item.Carbs = in.Calories, in.Protein, in.Fat, in.Carbs
			item.Source = source
		}

		if err := ensureDay(tx, userID, date); err != nil {
			return err
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return bumpCounter(tx, userID, date, "consumed_calories", item.Calories)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, userID, date, ChangeFood, "food.add", FoodDelta(item.Calories))
	return &item, nil
}

// UpdateFoodGrams changes the portion size. Catalog items are recomputed
// from the product; other items scale linearly from their stored grams.
func (s *LogService) UpdateFoodGrams(ctx context.Context, userID, date string, id uuid.UUID, grams float64) (*models.FoodLogItem, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	if grams <= 0 {
		return nil, fmt.Errorf("%w: grams must be positive", ErrInvalidInput)
	}

	var item models.FoodLogItem
	var oldCalories float64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ? AND date = ?", id, userID, date).Take(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		oldCalories = item.Calories

		current := Macros{Calories: item.Calories, Protein: item.Protein, Fat: item.Fat, Carbs: item.Carbs}
		next := ScaleMacros(current, item.Grams, grams)
		if item.ProductID != nil {
			var product models.Product
			err := tx.Where("id = ?", *item.ProductID).Take(&product).Error
			switch {
			case err == nil:
				next = PortionMacros(&product, grams)
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		if err := tx.Model(&item).Updates(map[string]interface{}{
			"grams":    grams,
			"calories": next.Calories,
			"protein":  next.Protein,
			"fat":      next.Fat,
			"carbs":    next.Carbs,
		}).Error; err != nil {
			return err
		}
		item.Grams = grams
		item.Calories, item.Protein, item.Fat, item.Carbs = next.Calories, next.Protein, next.Fat, next.Carbs

		return bumpCounter(tx, userID, date, "consumed_calories", next.Calories-oldCalories)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, userID, date, ChangeFood, "food.edit", FoodEditDelta(oldCalories, item.Calories))
	return &item, nil
}

func (s *LogService) DeleteFood(ctx context.Context, userID, date string, id uuid.UUID) error {
	date, err := NormalizeDate(date)
	if err != nil {
		return err
	}

	var item models.FoodLogItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ? AND date = ?", id, userID, date).Take(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return bumpCounter(tx, userID, date, "consumed_calories", -item.Calories)
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, userID, date, ChangeFood, "food.delete", -FoodDelta(item.Calories))
	return nil
}

func (s *LogService) AddActivity(ctx context.Context, userID, date string, in ActivityInput) (*models.ActivityLogItem, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Calories < 0 {
		return nil, fmt.Errorf("%w: activity needs a name and non-negative calories", ErrInvalidInput)
	}

	item := models.ActivityLogItem{UserID: userID, Date: date, Name: name, Calories: in.Calories}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDay(tx, userID, date); err != nil {
			return err
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return bumpCounter(tx, userID, date, "active_calories", item.Calories)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, userID, date, ChangeActivity, "activity.add", ActivityDelta(item.Calories))
	return &item, nil
}

func (s *LogService) UpdateActivity(ctx context.Context, userID, date string, id uuid.UUID, in ActivityInput) (*models.ActivityLogItem, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Calories < 0 {
		return nil, fmt.Errorf("%w: activity needs a name and non-negative calories", ErrInvalidInput)
	}

	var item models.ActivityLogItem
	var oldCalories float64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ? AND date = ?", id, userID, date).Take(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		oldCalories = item.Calories
		if err := tx.Model(&item).Updates(map[string]interface{}{
			"name":     name,
			"calories": in.Calories,
		}).Error; err != nil {
			return err
		}
		item.Name = name
		item.Calories = in.Calories
		return bumpCounter(tx, userID, date, "active_calories", in.Calories-oldCalories)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, userID, date, ChangeActivity, "activity.edit", ActivityEditDelta(oldCalories, item.Calories))
	return &item, nil
}

func (s *LogService) DeleteActivity(ctx context.Context, userID, date string, id uuid.UUID) error {
	date, err := NormalizeDate(date)
	if err != nil {
		return err
	}

	var item models.ActivityLogItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ? AND date = ?", id, userID, date).Take(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return bumpCounter(tx, userID, date, "active_calories", -item.Calories)
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, userID, date, ChangeActivity, "activity.delete", -ActivityDelta(item.Calories))
	return nil
}

// afterWrite publishes the change and schedules the xp delta.
func (s *LogService) afterWrite(ctx context.Context, userID, date, kind, op string, delta float64) {
	publish(ctx, s.notifier, s.log, Change{UserID: userID, Date: date, Kind: kind})

	if delta == 0 || s.ledger == nil {
		return
	}
	run := func(ctx context.Context) error {
		_, err := s.ledger.ApplyDelta(ctx, userID, delta)
		return err
	}
	if s.dispatcher == nil {
		if err := run(ctx); err != nil {
			s.log.Error("xp update failed", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
			s.flagDay(userID, date)
		}
		return
	}

	err := s.dispatcher.Submit(Task{
		Name:   "xp." + op,
		UserID: userID,
		Run:    run,
		OnFailure: func(err error) {
			s.log.Error("xp delta dropped",
				zap.String("op", op),
				zap.String("user_id", userID),
				zap.String("date", date),
				zap.Float64("delta", delta),
				zap.Error(err),
			)
			s.flagDay(userID, date)
		},
	})
	if err != nil {
		s.log.Error("failed to schedule xp update", zap.String("op", op), zap.Error(err))
		s.flagDay(userID, date)
	}
}

func (s *LogService) flagDay(userID, date string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.WithContext(ctx).Model(&models.DailyLog{}).
		Where("user_id = ? AND date = ?", userID, date).
		Update("needs_reconcile", true).Error; err != nil {
		if s.reporter != nil && IsPermissionError(err) {
			s.reporter.Report("dailylog.flag", userID, err)
		}
		s.log.Error("failed to flag day for reconciliation",
			zap.String("user_id", userID),
			zap.String("date", date),
			zap.Error(err),
		)
	}
}

// ensureDay creates the day with a snapshot of the profile goals. An existing
// day is left untouched.
func ensureDay(tx *gorm.DB, userID, date string) error {
	day := models.DailyLog{UserID: userID, Date: date}

	var profile models.UserProfile
	err := tx.Where("user_id = ?", userID).Take(&profile).Error
	switch {
	case err == nil:
		day.GoalCalories = profile.DailyCalories
		day.GoalProtein = profile.DailyProtein
		day.GoalCarbs = profile.DailyCarbs
		day.GoalFat = profile.DailyFat
		day.MaintenanceCalories = profile.MaintenanceCalories
		day.DeficitTarget = profile.DeficitTarget
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&day).Error
}

func bumpCounter(tx *gorm.DB, userID, date, column string, delta float64) error {
	if delta == 0 {
		return nil
	}
	return tx.Model(&models.DailyLog{}).
		Where("user_id = ? AND date = ?", userID, date).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

func upsertWeight(tx *gorm.DB, userID, date string, kg float64) error {
	entry := models.WeightEntry{UserID: userID, Date: date, Weight: kg}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"weight", "updated_at"}),
	}).Create(&entry).Error
}
