package service

import (
	"math"

	"github.com/byefat/backend/internal/models"
)

// Totals are the plain sums over one day's items.
type Totals struct {
	ConsumedCalories float64 `json:"consumed_calories"`
	Protein          float64 `json:"protein"`
	Carbs            float64 `json:"carbs"`
	Fat              float64 `json:"fat"`
	ActiveCalories   float64 `json:"active_calories"`
}

// Aggregate sums food macros and burned calories. The result does not
// depend on item order and an empty day yields zero totals.
func Aggregate(foods []models.FoodLogItem, activities []models.ActivityLogItem) Totals {
	var t Totals
	for _, f := range foods {
		t.ConsumedCalories += f.Calories
		t.Protein += f.Protein
		t.Carbs += f.Carbs
		t.Fat += f.Fat
	}
	for _, a := range activities {
		t.ActiveCalories += a.Calories
	}
	return t
}

// Macros are absolute nutrition values for an eaten portion.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

// PortionMacros scales per-100 g values of p to grams, rounding each value to
// a whole number.
func PortionMacros(p *models.Product, grams float64) Macros {
	f := grams / 100
	return Macros{
		Calories: math.Round(p.Calories * f),
		Protein:  math.Round(p.Protein * f),
		Fat:      math.Round(p.Fat * f),
		Carbs:    math.Round(p.Carbs * f),
	}
}

// ScaleMacros rescales an entry that has no catalog product behind it.
func ScaleMacros(m Macros, fromGrams, toGrams float64) Macros {
	if fromGrams <= 0 {
		return m
	}
	f := toGrams / fromGrams
	return Macros{
		Calories: math.Round(m.Calories * f),
		Protein:  math.Round(m.Protein * f),
		Fat:      math.Round(m.Fat * f),
		Carbs:    math.Round(m.Carbs * f),
	}
}
