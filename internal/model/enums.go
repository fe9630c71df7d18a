package model

// Job status
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusRunning          JobStatus = "running"
	JobStatusPaused           JobStatus = "paused"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusCancelled        JobStatus = "cancelled"
)

// IsTerminal reports whether a job status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Batch status
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusPaused    BatchStatus = "paused"
	BatchStatusCancelled BatchStatus = "cancelled"
	BatchStatusCompleted BatchStatus = "completed"
)

// IsTerminal reports whether a batch status is final.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled
}

// Item status for per-item batch results
type ItemStatus string

const (
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusError   ItemStatus = "error"
)

// Approval checkpoint decisions
type Decision string

const (
	DecisionAccept           Decision = "accept"
	DecisionRegenerateSubset Decision = "regenerate_subset"
	DecisionRegenerateAll    Decision = "regenerate_all"
	DecisionAddReferences    Decision = "add_references"
)

var ValidDecisions = []Decision{
	DecisionAccept, DecisionRegenerateSubset, DecisionRegenerateAll, DecisionAddReferences,
}

// Consistency score ratings
type Rating string

const (
	RatingExcellent  Rating = "excellent"
	RatingAcceptable Rating = "acceptable"
	RatingMarginal   Rating = "marginal"
	RatingFailed     Rating = "failed"
)

// Aspect ratios for generated ads
type AspectRatio string

const (
	AspectVertical   AspectRatio = "9:16"
	AspectSquare     AspectRatio = "1:1"
	AspectHorizontal AspectRatio = "16:9"
)

var ValidAspectRatios = []AspectRatio{AspectVertical, AspectSquare, AspectHorizontal}

// Brand tones
type Tone string

const (
	TonePlayful  Tone = "playful"
	ToneBold     Tone = "bold"
	ToneLuxury   Tone = "luxury"
	ToneMinimal  Tone = "minimal"
	ToneFriendly Tone = "friendly"
	ToneUrgent   Tone = "urgent"
)

var ValidTones = []Tone{
	TonePlayful, ToneBold, ToneLuxury, ToneMinimal, ToneFriendly, ToneUrgent,
}

// Voiceover voices
type Voice string

const (
	VoiceNarratorFemale Voice = "narrator_female"
	VoiceNarratorMale   Voice = "narrator_male"
	VoiceEnergetic      Voice = "energetic"
	VoiceCalm           Voice = "calm"
)

var ValidVoices = []Voice{
	VoiceNarratorFemale, VoiceNarratorMale, VoiceEnergetic, VoiceCalm,
}

// Scene transitions used by the compositor
type Transition string

const (
	TransitionCut   Transition = "cut"
	TransitionFade  Transition = "fade"
	TransitionSlide Transition = "slide"
	TransitionZoom  Transition = "zoom"
)
