package service

const (
	// DefaultDeficitTarget applies when neither the day nor the profile has one.
	DefaultDeficitTarget = 500.0
	// maintenanceOverGoal derives maintenance from the daily goal when unknown.
	maintenanceOverGoal = 500.0
)

// DeficitInput carries the values needed to compute one day's balance.
// MaintenanceCalories and DeficitTarget are nil when unknown.
type DeficitInput struct {
	MaintenanceCalories *float64
	DailyCalories       float64
	ActiveCalories      float64
	ConsumedCalories    float64
	DeficitTarget       *float64
}

// DeficitResult is the energy balance of a day.
type DeficitResult struct {
	Maintenance     float64 `json:"maintenance"`
	DeficitTarget   float64 `json:"deficit_target"`
	CurrentDeficit  float64 `json:"current_deficit"`
	DynamicGoal     float64 `json:"dynamic_goal"`
	CaloriesLeft    float64 `json:"calories_left"`
	ProgressPercent float64 `json:"progress_percent"`
}

// CalculateDeficit computes the balance. Only ProgressPercent is clamped;
// CaloriesLeft goes negative once the dynamic goal is exceeded.
func CalculateDeficit(in DeficitInput) DeficitResult {
	maintenance := in.DailyCalories + maintenanceOverGoal
	if in.MaintenanceCalories != nil {
		maintenance = *in.MaintenanceCalories
	}
	target := DefaultDeficitTarget
	if in.DeficitTarget != nil {
		target = *in.DeficitTarget
	}

	res := DeficitResult{
		Maintenance:    maintenance,
		DeficitTarget:  target,
		CurrentDeficit: maintenance + in.ActiveCalories - in.ConsumedCalories,
		DynamicGoal:    maintenance - target + in.ActiveCalories,
	}
	res.CaloriesLeft = res.DynamicGoal - in.ConsumedCalories
	if target != 0 {
		res.ProgressPercent = clamp(res.CurrentDeficit/target*100, 0, 100)
	}
	return res
}

// firstSet returns the first non-nil value.
func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
