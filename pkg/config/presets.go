package config

import "time"

const (
	PresetFast     = "fast"
	PresetBalanced = "balanced"
	PresetThinking = "thinking"
)

// Preset is a named pair of stage models with their temperatures.
type Preset struct {
	Name              string
	Description       string
	StageAModel       string
	StageBModel       string
	StageATemperature float64
	StageBTemperature float64
}

var Presets = map[string]Preset{
	PresetFast: {
		Name:              PresetFast,
		Description:       "lowest latency, small classifier",
		StageAModel:       "phi3:mini",
		StageBModel:       "qwen2.5:7b",
		StageATemperature: 0.2,
		StageBTemperature: 0.3,
	},
	PresetBalanced: {
		Name:              PresetBalanced,
		Description:       "default trade-off",
		StageAModel:       "llama3.2:3b",
		StageBModel:       "qwen2.5:7b",
		StageATemperature: 0.3,
		StageBTemperature: 0.3,
	},
	PresetThinking: {
		Name:              PresetThinking,
		Description:       "larger planner for multi-step goals",
		StageAModel:       "llama3.2:3b",
		StageBModel:       "mistral-nemo:12b-instruct",
		StageATemperature: 0.4,
		StageBTemperature: 0.4,
	},
}

// Stages is the resolved model selection used by the planner.
type Stages struct {
	StageAModel       string
	StageBModel       string
	StageATemperature float64
	StageBTemperature float64
	StageATimeout     time.Duration
	StageBTimeout     time.Duration
}

// Models lists the distinct models the stages need.
func (s Stages) Models() []string {
	if s.StageAModel == s.StageBModel {
		return []string{s.StageAModel}
	}
	return []string{s.StageAModel, s.StageBModel}
}
