package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
)

const (
	kcalPerKgFat        = 7700.0
	projectionDays      = 30
	fallbackMaintenance = 2000.0
	weightTrendWindow   = 7
)

// ProgressPoint is one charted day.
type ProgressPoint struct {
	Date             string   `json:"date"`
	GoalCalories     *float64 `json:"goal_calories"`
	ConsumedCalories *float64 `json:"consumed_calories"`
	ActiveCalories   *float64 `json:"active_calories"`
	CalorieBalance   *float64 `json:"calorie_balance"`
	Weight           *float64 `json:"weight"`
	WeightTrend      *float64 `json:"weight_trend"`
}

type DeficitDay struct {
	Date        string  `json:"date"`
	Deficit     float64 `json:"deficit"`
	Maintenance float64 `json:"maintenance"`
	Consumed    float64 `json:"consumed"`
}

type DeficitStats struct {
	Days                    []DeficitDay `json:"days"`
	AverageDeficit          float64      `json:"average_deficit"`
	TotalDeficit            float64      `json:"total_deficit"`
	MaxDeficit              float64      `json:"max_deficit"`
	MinDeficit              float64      `json:"min_deficit"`
	DaysCount               int          `json:"days_count"`
	ProjectedWeightLossKg   float64      `json:"projected_weight_loss_kg"`
	ProjectedWeightLossGram float64      `json:"projected_weight_loss_grams"`
}

// ProgressReport backs the progress view.
type ProgressReport struct {
	Points       []ProgressPoint `json:"points"`
	Deficit      *DeficitStats   `json:"deficit"`
	DeficitLevel LevelProgress   `json:"deficit_level"`
	Streak       int             `json:"streak"`
}

// IProgressService defines the progress view operations
type IProgressService interface {
	Report(ctx context.Context, userID, from, to string) (*ProgressReport, error)
}

type ProgressService struct {
	db  *gorm.DB
	now func() time.Time
}

var _ IProgressService = (*ProgressService)(nil)

func NewProgressService(db *gorm.DB) *ProgressService {
	return &ProgressService{db: db, now: time.Now}
}

// Report builds the chart, deficit statistics and streak for [from, to].
// Empty bounds are open.
func (s *ProgressService) Report(ctx context.Context, userID, from, to string) (*ProgressReport, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return nil, ErrInvalidDate
		}
	}
	db := s.db.WithContext(ctx)

	var logs []models.DailyLog
	if err := dateRange(db.Where("user_id = ?", userID), from, to).Order("date ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	var weights []models.WeightEntry
	if err := dateRange(db.Where("user_id = ?", userID), from, to).Order("date ASC").Find(&weights).Error; err != nil {
		return nil, err
	}

	var maintenance *float64
	var profile models.UserProfile
	err := db.Select("user_id", "maintenance_calories").Where("user_id = ?", userID).Take(&profile).Error
	switch {
	case err == nil:
		maintenance = profile.MaintenanceCalories
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	var allDates []string
	if err := db.Model(&models.DailyLog{}).Where("user_id = ?", userID).
		Order("date DESC").Pluck("date", &allDates).Error; err != nil {
		return nil, err
	}

	points := BuildHistory(logs, weights)
	stats := BuildDeficitStats(points, maintenance)

	var positive float64
	if stats != nil {
		for _, d := range stats.Days {
			if d.Deficit > 0 {
				positive += d.Deficit
			}
		}
	}

	return &ProgressReport{
		Points:       points,
		Deficit:      stats,
		DeficitLevel: DeficitLevelEngine.Progress(positive),
		Streak:       Streak(allDates, s.now()),
	}, nil
}

func dateRange(q *gorm.DB, from, to string) *gorm.DB {
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	return q
}

// BuildHistory charts every date with food or activity and every date with a
// weight. Weight carries forward from the last weighed day and the trend is
// the mean of the last seven charted weights.
func BuildHistory(logs []models.DailyLog, weights []models.WeightEntry) []ProgressPoint {
	byDate := make(map[string]models.DailyLog, len(logs))
	dateSet := map[string]struct{}{}
	for _, l := range logs {
		byDate[l.Date] = l
		if l.ConsumedCalories > 0 || l.ActiveCalories > 0 {
			dateSet[l.Date] = struct{}{}
		}
	}
	weightByDate := make(map[string]float64, len(weights))
	for _, w := range weights {
		weightByDate[w.Date] = w.Weight
		dateSet[w.Date] = struct{}{}
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := make([]ProgressPoint, 0, len(dates))
	var lastWeight *float64
	for _, date := range dates {
		p := ProgressPoint{Date: date}
		if l, ok := byDate[date]; ok {
			consumed, active := l.ConsumedCalories, l.ActiveCalories
			p.GoalCalories = l.GoalCalories
			p.ConsumedCalories = &consumed
			p.ActiveCalories = &active
			if l.GoalCalories != nil {
				balance := *l.GoalCalories - consumed
				p.CalorieBalance = &balance
			}
		}
		if w, ok := weightByDate[date]; ok {
			w := w
			lastWeight = &w
		}
		p.Weight = lastWeight
		points = append(points, p)
	}

	for i := range points {
		var sum float64
		var n int
		for j := i; j >= 0 && j > i-weightTrendWindow; j-- {
			if points[j].Weight != nil {
				sum += *points[j].Weight
				n++
			}
		}
		if n > 0 {
			trend := math.Round(sum/float64(n)*100) / 100
			points[i].WeightTrend = &trend
		}
	}
	return points
}

// BuildDeficitStats covers the days that carry a calorie goal. Maintenance
// comes from the profile, then the day's goal, then a flat 2000 kcal.
// It returns nil when no day qualifies.
func BuildDeficitStats(points []ProgressPoint, maintenance *float64) *DeficitStats {
	var days []DeficitDay
	for _, p := range points {
		if p.GoalCalories == nil || *p.GoalCalories <= 0 {
			continue
		}
		m := fallbackMaintenance
		if maintenance != nil && *maintenance > 0 {
			m = *maintenance
		} else if *p.GoalCalories > 0 {
			m = *p.GoalCalories
		}
		var consumed float64
		if p.ConsumedCalories != nil {
			consumed = *p.ConsumedCalories
		}
		days = append(days, DeficitDay{
			Date:        p.Date,
			Deficit:     math.Round(m - consumed),
			Maintenance: math.Round(m),
			Consumed:    math.Round(consumed),
		})
	}
	if len(days) == 0 {
		return nil
	}

	total := 0.0
	maxD, minD := days[0].Deficit, days[0].Deficit
	for _, d := range days {
		total += d.Deficit
		maxD = math.Max(maxD, d.Deficit)
		minD = math.Min(minD, d.Deficit)
	}
	avg := total / float64(len(days))
	projectedKg := avg * projectionDays / kcalPerKgFat

	return &DeficitStats{
		Days:                    days,
		AverageDeficit:          math.Round(avg),
		TotalDeficit:            math.Round(total),
		MaxDeficit:              math.Round(maxD),
		MinDeficit:              math.Round(minD),
		DaysCount:               len(days),
		ProjectedWeightLossKg:   math.Round(projectedKg*10) / 10,
		ProjectedWeightLossGram: math.Round(projectedKg * 1000),
	}
}

// Streak counts consecutive logged days ending today or yesterday. dates
// must be sorted newest first.
func Streak(dates []string, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	today := now.Format(models.DateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(models.DateLayout)
	if dates[0] != today && dates[0] != yesterday {
		return 0
	}

	expected, err := time.Parse(models.DateLayout, dates[0])
	if err != nil {
		return 0
	}
	streak := 0
	for _, d := range dates {
		if d != expected.Format(models.DateLayout) {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak
}
