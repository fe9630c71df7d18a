package model

// DimensionScores is the raw per-dimension breakdown returned by the
// perceptual scoring collaborator. All values are in [0.0, 1.0].
type DimensionScores struct {
	Identity         float64 `json:"identity"`
	Continuity       float64 `json:"continuity"`
	PromptAdherence  float64 `json:"promptAdherence"`
	TechnicalQuality float64 `json:"technicalQuality"`
	Notes            string  `json:"notes,omitempty"`
}

// ConsistencyScoreResult is one scored candidate. Produced fresh on every
// scoring call; superseded, never mutated.
type ConsistencyScoreResult struct {
	Score      float64         `json:"score"`
	Rating     Rating          `json:"rating"`
	Dimensions DimensionScores `json:"dimensions"`
	Notes      string          `json:"notes,omitempty"`
}

// GroupConsistencyReport is the cross-item variance analysis over a set of
// per-item scores.
type GroupConsistencyReport struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stdDev"`
	Pass     bool    `json:"pass"`
	Outliers []int   `json:"outliers,omitempty"`
}
