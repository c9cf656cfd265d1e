package service

import (
	"math"
	"strings"

	"github.com/byefat/backend/internal/models"
)

const (
	activityFactor     = 1.2
	goalCalorieOffset  = 500.0
	kcalPerGramProtein = 4.0
	kcalPerGramCarbs   = 4.0
	kcalPerGramFat     = 9.0
)

// Biometrics are the inputs of the target calculator.
type Biometrics struct {
	Gender string  `json:"gender" binding:"required,oneof=male female"`
	Age    int     `json:"age" binding:"required,min=1,max=120"`
	Weight float64 `json:"weight" binding:"required,gt=0"`
	Height float64 `json:"height" binding:"required,gt=0"`
	Goal   string  `json:"goal" binding:"required,oneof=lose maintain gain"`
}

// Targets are daily goals derived from biometrics.
type Targets struct {
	Calories            float64 `json:"calories"`
	Protein             float64 `json:"protein"`
	Carbs               float64 `json:"carbs"`
	Fat                 float64 `json:"fat"`
	MaintenanceCalories float64 `json:"maintenance_calories"`
	DeficitTarget       float64 `json:"deficit_target"`
}

type macroSplit struct{ protein, carbs, fat float64 }

var goalSplits = map[string]macroSplit{
	models.GoalLose:     {0.40, 0.30, 0.30},
	models.GoalMaintain: {0.30, 0.40, 0.30},
	models.GoalGain:     {0.35, 0.45, 0.20},
}

// CalculateTargets applies Mifflin-St Jeor with a sedentary activity factor.
// Unknown goals are treated as maintain.
func CalculateTargets(b Biometrics) Targets {
	bmr := 10*b.Weight + 6.25*b.Height - 5*float64(b.Age)
	if strings.EqualFold(b.Gender, "male") {
		bmr += 5
	} else {
		bmr -= 161
	}
	tdee := bmr * activityFactor

	goal := strings.ToLower(b.Goal)
	split, ok := goalSplits[goal]
	if !ok {
		goal = models.GoalMaintain
		split = goalSplits[goal]
	}

	calories := tdee
	switch goal {
	case models.GoalLose:
		calories = tdee - goalCalorieOffset
	case models.GoalGain:
		calories = tdee + goalCalorieOffset
	}

	t := Targets{
		Calories:            math.Round(calories),
		Protein:             math.Round(calories * split.protein / kcalPerGramProtein),
		Carbs:               math.Round(calories * split.carbs / kcalPerGramCarbs),
		Fat:                 math.Round(calories * split.fat / kcalPerGramFat),
		MaintenanceCalories: math.Round(tdee),
	}
	if goal == models.GoalLose {
		t.DeficitTarget = goalCalorieOffset
	}
	return t
}
