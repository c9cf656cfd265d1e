package service

import "math"

// LevelProgress describes where an XP total sits inside its level.
type LevelProgress struct {
	Level            int     `json:"level"`
	NextLevel        int     `json:"next_level"`
	CurrentXP        float64 `json:"current_xp"`
	XPInLevel        float64 `json:"xp_in_level"`
	XPRequired       float64 `json:"xp_required"`
	ProgressPercent  float64 `json:"progress_percent"`
	NextLevelTotalXP float64 `json:"next_level_total_xp"`
}

// LevelEngine maps accumulated XP to levels.
type LevelEngine interface {
	LevelFromXP(xp float64) int
	XPForLevel(level int) float64
	Progress(xp float64) LevelProgress
}

// SqrtLevelEngine is the canonical curve: level L starts at (L-1)^2 * Base XP.
type SqrtLevelEngine struct {
	Base float64
}

// DefaultLevelEngine is the curve stored on profiles.
var DefaultLevelEngine LevelEngine = SqrtLevelEngine{Base: 500}

func (e SqrtLevelEngine) LevelFromXP(xp float64) int {
	if xp < 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(xp/e.Base))) + 1
}

func (e SqrtLevelEngine) XPForLevel(level int) float64 {
	if level <= 1 {
		return 0
	}
	n := float64(level - 1)
	return n * n * e.Base
}

func (e SqrtLevelEngine) Progress(xp float64) LevelProgress {
	level := e.LevelFromXP(xp)
	start := e.XPForLevel(level)
	next := e.XPForLevel(level + 1)
	return buildProgress(level, xp, xp-start, next-start, next)
}

// LinearLevelEngine grants one level per Threshold kcal of deficit. It backs
// the deficit-level summary on the progress view and nothing else.
type LinearLevelEngine struct {
	Threshold float64
}

// DeficitLevelEngine is the linear curve with one level per 3500 kcal.
var DeficitLevelEngine LevelEngine = LinearLevelEngine{Threshold: 3500}

func (e LinearLevelEngine) LevelFromXP(xp float64) int {
	return int(math.Floor(math.Max(0, xp)/e.Threshold)) + 1
}

func (e LinearLevelEngine) XPForLevel(level int) float64 {
	if level <= 1 {
		return 0
	}
	return float64(level-1) * e.Threshold
}

func (e LinearLevelEngine) Progress(xp float64) LevelProgress {
	level := e.LevelFromXP(xp)
	inLevel := math.Mod(math.Max(0, xp), e.Threshold)
	return buildProgress(level, xp, inLevel, e.Threshold, e.XPForLevel(level+1))
}

func buildProgress(level int, xp, inLevel, required, nextTotal float64) LevelProgress {
	p := LevelProgress{
		Level:            level,
		NextLevel:        level + 1,
		CurrentXP:        xp,
		XPInLevel:        inLevel,
		XPRequired:       required,
		NextLevelTotalXP: nextTotal,
	}
	if required > 0 {
		p.ProgressPercent = clamp(inLevel/required*100, 0, 100)
	}
	return p
}
