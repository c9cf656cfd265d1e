package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/testhelpers"
)

func TestEnsureProfileNeverOverwrites(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	svc := NewProfileService(db, nil, zap.NewNop())
	ctx := context.Background()

	p, err := svc.EnsureProfile(ctx, Identity{UserID: "u1", Email: "a@example.com", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, "Ana", p.Name)

	require.NoError(t, db.Model(&models.UserProfile{}).Where("user_id = ?", "u1").Update("xp", 750).Error)

	p, err = svc.EnsureProfile(ctx, Identity{UserID: "u1", Email: "changed@example.com", Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, 750.0, p.XP)

	_, err = svc.EnsureProfile(ctx, Identity{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateProfile(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	testhelpers.CreateProfile(t, db, "u1")
	svc := NewProfileService(db, nil, zap.NewNop())

	name := "  Renamed "
	p, err := svc.UpdateProfile(context.Background(), "u1", ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)

	_, err = svc.UpdateProfile(context.Background(), "ghost", ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestUpdateBiometricsSnapshotsOnlyThatDay(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithGoals(1800, 2300))
	svc := NewProfileService(db, nil, zap.NewNop())
	logs := NewLogService(db, nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := logs.AddFood(ctx, "u1", "2024-05-01", FoodInput{Name: "Porridge", Calories: 300})
	require.NoError(t, err)
	_, err = logs.AddFood(ctx, "u1", "2024-05-02", FoodInput{Name: "Porridge", Calories: 300})
	require.NoError(t, err)

	b := Biometrics{Gender: "male", Age: 30, Weight: 80, Height: 180, Goal: models.GoalLose}
	p, targets, err := svc.UpdateBiometrics(ctx, "u1", "2024-05-02", b)
	require.NoError(t, err)
	assert.Equal(t, 1636.0, targets.Calories)
	assert.Equal(t, 1636.0, *p.DailyCalories)
	assert.Equal(t, 80.0, *p.Weight)

	assert.Equal(t, 1800.0, *testhelpers.ReloadDay(t, db, "u1", "2024-05-01").GoalCalories)
	day := testhelpers.ReloadDay(t, db, "u1", "2024-05-02")
	assert.Equal(t, 1636.0, *day.GoalCalories)
	assert.Equal(t, 2136.0, *day.MaintenanceCalories)
	assert.Equal(t, 300.0, day.ConsumedCalories, "counters survive the goal merge")

	var weights []models.WeightEntry
	require.NoError(t, db.Where("user_id = ?", "u1").Find(&weights).Error)
	require.Len(t, weights, 1)
	assert.Equal(t, "2024-05-02", weights[0].Date)

	_, _, err = svc.UpdateBiometrics(ctx, "ghost", "2024-05-02", b)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestClaimUsername(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithUsername("first"))
	testhelpers.CreateProfile(t, db, "u2")
	svc := NewProfileService(db, nil, zap.NewNop())
	products := NewProductService(db, zap.NewNop())
	ctx := context.Background()

	prod, err := products.Create(ctx, "u1", ProductInput{Name: "Kefir", Calories: 60})
	require.NoError(t, err)
	assert.Equal(t, "first", prod.CreatorUsername)

	p, err := svc.ClaimUsername(ctx, "u1", "Chef_Ana")
	require.NoError(t, err)
	assert.Equal(t, "chef_ana", *p.Username)

	stored, err := products.Get(ctx, prod.ID)
	require.NoError(t, err)
	assert.Equal(t, "chef_ana", stored.CreatorUsername)

	_, err = svc.ClaimUsername(ctx, "u2", "CHEF_ANA")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.ClaimUsername(ctx, "u2", "no spaces")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = svc.ClaimUsername(ctx, "u2", "ab")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	// re-claiming your own handle is allowed
	_, err = svc.ClaimUsername(ctx, "u1", "chef_ana")
	assert.NoError(t, err)
}

func TestGetLevel(t *testing.T) {
	db := testhelpers.SetupSQLite(t)
	testhelpers.CreateProfile(t, db, "u1", testhelpers.WithXP(2250))
	svc := NewProfileService(db, nil, zap.NewNop())

	lp, err := svc.GetLevel(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, lp.Level)
	assert.Equal(t, 250.0, lp.XPInLevel)
	assert.Equal(t, 2500.0, lp.XPRequired)
	assert.Equal(t, 10.0, lp.ProgressPercent)

	_, err = svc.GetLevel(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}
