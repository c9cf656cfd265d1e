package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/testhelpers"
)

const testDate = "2024-05-10"

type failingLedger struct{ calls int }

func (f *failingLedger) ApplyDelta(context.Context, string, float64) (XPState, error) {
	f.calls++
	return XPState{}, errors.New("store unavailable")
}

func newLogService(t *testing.T) (*LogService, *gorm.DB) {
	t.Helper()
	db := testhelpers.SetupSQLite(t)
	svc := NewLogService(db, NewXPLedger(db, zap.NewNop()), nil, NewLocalNotifier(), zap.NewNop())
	return svc, db
}

func seedProduct(t *testing.T, db *gorm.DB, caloriesPer100 float64) models.Product {
	t.Helper()
	p := models.Product{Name: "Oats", Calories: caloriesPer100, Protein: 13, Fat: 7, Carbs: 60, CreatorID: "owner"}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func TestAddFoodManualUpdatesCounterAndXP(t *testing.T) {
	svc, db := newLogService(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithGoals(2000, 2500), testhelpers.WithXP(1000))

	item, err := svc.AddFood(context.Background(), "u1", testDate, FoodInput{Name: "Pasta", Calories: 500, Protein: 18})
	require.NoError(t, err)
	assert.Equal(t, models.SourceManual, item.Source)

	day := testhelpers.ReloadDay(t, db, "u1", testDate)
	assert.Equal(t, 500.0, day.ConsumedCalories)
	require.NotNil(t, day.GoalCalories)
	assert.Equal(t, 2000.0, *day.GoalCalories)

	assert.Equal(t, 500.0, testhelpers.ReloadProfile(t, db, "u1").XP)
}

func TestAddFoodFromProductRoundsPortion(t *testing.T) {
	svc, db := newLogService(t)
	product := seedProduct(t, db, 389)

	item, err := svc.AddFood(context.Background(), "u1", testDate, FoodInput{ProductID: &product.ID, Grams: 45})
	require.NoError(t, err)
	assert.Equal(t, 175.0, item.Calories)
	assert.Equal(t, "Oats", item.ProductName)
	assert.Equal(t, models.SourceProduct, item.Source)
}

func TestAddFoodValidation(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := svc.AddFood(ctx, "u1", testDate, FoodInput{ProductID: &missing, Grams: 100})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.AddFood(ctx, "u1", testDate, FoodInput{ProductID: &missing, Grams: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddFood(ctx, "u1", testDate, FoodInput{Name: " ", Calories: 10})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddFood(ctx, "u1", testDate, FoodInput{Name: "Soup", Calories: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddFood(ctx, "u1", testDate, FoodInput{Name: "Soup", Calories: 10, Source: "fridge"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddFood(ctx, "u1", "10/05/2024", FoodInput{Name: "Soup", Calories: 10})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestUpdateFoodGramsAdjustsByDifference(t *testing.T) {
	svc, db := newLogService(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithXP(1000))
	product := seedProduct(t, db, 250)
	ctx := context.Background()

	item, err := svc.AddFood(ctx, "u1", testDate, FoodInput{ProductID: &product.ID, Grams: 200})
	require.NoError(t, err)
	require.Equal(t, 500.0, item.Calories)

	updated, err := svc.UpdateFoodGrams(ctx, "u1", testDate, item.ID, 280)
	require.NoError(t, err)
	assert.Equal(t, 700.0, updated.Calories)
	assert.Equal(t, 280.0, updated.Grams)

	assert.Equal(t, 700.0, testhelpers.ReloadDay(t, db, "u1", testDate).ConsumedCalories)
	// 1000 - 500 on add, then -200 for the edit
	assert.Equal(t, 300.0, testhelpers.ReloadProfile(t, db, "u1").XP)
}

func TestUpdateFoodGramsScalesManualEntry(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()

	item, err := svc.AddFood(ctx, "u1", testDate, FoodInput{Name: "Rice", Grams: 100, Calories: 130, Carbs: 28})
	require.NoError(t, err)

	updated, err := svc.UpdateFoodGrams(ctx, "u1", testDate, item.ID, 150)
	require.NoError(t, err)
	assert.Equal(t, 195.0, updated.Calories)
	assert.Equal(t, 42.0, updated.Carbs)

	_, err = svc.UpdateFoodGrams(ctx, "u1", testDate, uuid.New(), 150)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.UpdateFoodGrams(ctx, "u1", testDate, item.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteFoodRestoresCounterAndXP(t *testing.T) {
	svc, db := newLogService(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithXP(1000))
	ctx := context.Background()

	item, err := svc.AddFood(ctx, "u1", testDate, FoodInput{Name: "Cake", Calories: 400})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteFood(ctx, "u1", testDate, item.ID))

	assert.Equal(t, 0.0, testhelpers.ReloadDay(t, db, "u1", testDate).ConsumedCalories)
	assert.Equal(t, 1000.0, testhelpers.ReloadProfile(t, db, "u1").XP)

	assert.ErrorIs(t, svc.DeleteFood(ctx, "u1", testDate, item.ID), ErrItemNotFound)
}

func TestActivityLifecycle(t *testing.T) {
	svc, db := newLogService(t)
	testhelpers.CreateProfile(t, db, "u1")
	ctx := context.Background()

	act, err := svc.AddActivity(ctx, "u1", testDate, ActivityInput{Name: "Run", Calories: 300})
	require.NoError(t, err)
	assert.Equal(t, 300.0, testhelpers.ReloadDay(t, db, "u1", testDate).ActiveCalories)
	assert.Equal(t, 300.0, testhelpers.ReloadProfile(t, db, "u1").XP)

	_, err = svc.UpdateActivity(ctx, "u1", testDate, act.ID, ActivityInput{Name: "Long run", Calories: 450})
	require.NoError(t, err)
	assert.Equal(t, 450.0, testhelpers.ReloadDay(t, db, "u1", testDate).ActiveCalories)
	assert.Equal(t, 450.0, testhelpers.ReloadProfile(t, db, "u1").XP)

	require.NoError(t, svc.DeleteActivity(ctx, "u1", testDate, act.ID))
	assert.Equal(t, 0.0, testhelpers.ReloadDay(t, db, "u1", testDate).ActiveCalories)
	assert.Equal(t, 0.0, testhelpers.ReloadProfile(t, db, "u1").XP)

	_, err = svc.AddActivity(ctx, "u1", testDate, ActivityInput{Name: "", Calories: 10})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetDaySnapshot(t *testing.T) {
	svc, db := newLogService(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithGoals(2000, 2500))
	ctx := context.Background()

	_, err := svc.AddFood(ctx, "u1", testDate, FoodInput{Name: "Toast", Calories: 300, Protein: 10})
	require.NoError(t, err)
	_, err = svc.AddFood(ctx, "u1", testDate, FoodInput{Name: "Salad", Calories: 200, Fat: 5})
	require.NoError(t, err)
	_, err = svc.AddActivity(ctx, "u1", testDate, ActivityInput{Name: "Walk", Calories: 150})
	require.NoError(t, err)

	// goals later on the profile must not leak into an existing day
	require.NoError(t, db.Model(&models.UserProfile{}).Where("user_id = ?", "u1").
		Update("daily_calories", 1500).Error)

	snap, err := svc.GetDay(ctx, "u1", testDate, time.UTC)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.Len(t, snap.Activities, 1)
	assert.Equal(t, 500.0, snap.Totals.ConsumedCalories)
	assert.Equal(t, 150.0, snap.Totals.ActiveCalories)
	require.NotNil(t, snap.Goals.Calories)
	assert.Equal(t, 2000.0, *snap.Goals.Calories)
	assert.Equal(t, 2150.0, snap.Balance.CurrentDeficit)
	assert.Equal(t, 2150.0, snap.Balance.DynamicGoal)
	assert.Equal(t, 1650.0, snap.Balance.CaloriesLeft)

	bucketed := 0
	for _, items := range snap.Meals {
		bucketed += len(items)
	}
	assert.Equal(t, 2, bucketed)
}

func TestGetDayWithoutLog(t *testing.T) {
	svc, db := newLogService(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithGoals(1800, 2300))

	snap, err := svc.GetDay(context.Background(), "u1", testDate, nil)
	require.NoError(t, err)
	assert.Nil(t, snap.Log)
	assert.Empty(t, snap.Items)
	require.NotNil(t, snap.Goals.Calories)
	assert.Equal(t, 1800.0, *snap.Goals.Calories)
	assert.Equal(t, 2300.0, snap.Balance.CurrentDeficit)
}

func TestMealForTime(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 5, 10, h, 30, 0, 0, time.UTC) }
	assert.Equal(t, MealSnack, MealForTime(at(2)))
	assert.Equal(t, MealBreakfast, MealForTime(at(7)))
	assert.Equal(t, MealLunch, MealForTime(at(12)))
	assert.Equal(t, MealDinner, MealForTime(at(19)))
	assert.Equal(t, MealSnack, MealForTime(at(23)))
}

func TestFailedXPUpdateFlagsDay(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	ledger := &failingLedger{}
	svc := NewLogService(db, ledger, nil, nil, zap.NewNop())

	_, err := svc.AddFood(context.Background(), "u1", testDate, FoodInput{Name: "Pie", Calories: 350})
	require.NoError(t, err, "item writes succeed even when xp cannot be applied")
	assert.Equal(t, 1, ledger.calls)

	day := testhelpers.ReloadDay(t, db, "u1", testDate)
	assert.Equal(t, 350.0, day.ConsumedCalories)
	assert.True(t, day.NeedsReconcile)
}

func TestFlagDayReportsPermissionDenial(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("deny_flag", func(tx *gorm.DB) {
		if dest, ok := tx.Statement.Dest.(map[string]interface{}); ok {
			if _, flagging := dest["needs_reconcile"]; flagging {
				_ = tx.AddError(fmt.Errorf("flag day: %w", ErrPermissionDenied))
			}
		}
	}))

	reporter := &recordingReporter{}
	svc := NewLogService(db, &failingLedger{}, nil, nil, zap.NewNop()).WithReporter(reporter)

	_, err := svc.AddFood(context.Background(), "u1", testDate, FoodInput{Name: "Pie", Calories: 350})
	require.NoError(t, err)

	assert.Equal(t, []string{"dailylog.flag:u1"}, reporter.calls)
	assert.False(t, testhelpers.ReloadDay(t, db, "u1", testDate).NeedsReconcile)
}

func TestAddFoodThroughDispatcher(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithXP(600))
	d := NewDispatcher(DefaultDispatcherConfig(), zap.NewNop(), nil)
	t.Cleanup(d.Close)
	notifier := NewLocalNotifier()
	svc := NewLogService(db, NewXPLedger(db, zap.NewNop()), d, notifier, zap.NewNop())

	changes, cancel, err := notifier.Subscribe(context.Background(), "u1", testDate)
	require.NoError(t, err)
	defer cancel()

	_, err = svc.AddFood(context.Background(), "u1", testDate, FoodInput{Name: "Bagel", Calories: 250})
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, 350.0, testhelpers.ReloadProfile(t, db, "u1").XP)
	select {
	case c := <-changes:
		assert.Equal(t, ChangeFood, c.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}
