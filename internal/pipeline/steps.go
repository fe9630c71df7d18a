package pipeline

import (
	"context"
	"time"

	"github.com/adforge/api/internal/model"
)

// Step names
const (
	StepScriptGeneration = "script_generation"
	StepScenePrompts     = "scene_prompts"
	StepStoryboard       = "storyboard"
	StepVideoGeneration  = "video_generation"
	StepAudioGeneration  = "audio_generation"
	StepComposition      = "composition"
)

// FailurePolicy names what a step does when one of its items fails.
// The policy is deliberately explicit per step rather than a side effect of
// error-handling shape.
type FailurePolicy string

const (
	// FailPropagate fails the whole job on an exhausted per-item retry
	FailPropagate FailurePolicy = "propagate"
	// FailTolerateItems records the item as an error entry and continues
	FailTolerateItems FailurePolicy = "tolerate_items"
)

// StepDef is one named, ordered stage with a fixed target progress
// percentage. The table below is the canonical step order; resume-skip
// decisions compare indices into it.
type StepDef struct {
	Name           string
	TargetProgress int
	Description    string
	OnItemFailure  FailurePolicy
}

var Steps = []StepDef{
	{StepScriptGeneration, 10, "Writing ad script...", FailPropagate},
	{StepScenePrompts, 25, "Planning scenes...", FailPropagate},
	{StepStoryboard, 45, "Generating storyboard...", FailTolerateItems},
	{StepVideoGeneration, 70, "Generating motion clips...", FailPropagate},
	{StepAudioGeneration, 85, "Synthesizing voiceover...", FailPropagate},
	{StepComposition, 95, "Compositing final video...", FailPropagate},
}

// StepIndex returns the position of a step name in the canonical order,
// or -1 for an unknown name.
func StepIndex(name string) int {
	for i, s := range Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Config tunes the orchestrator. Zero values fall back to defaults.
type Config struct {
	MaxRetries          int
	ApprovalTimeout     time.Duration
	StoryboardThreshold float64
	MaxRegenAttempts    int
	MaxClipSeconds      float64
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.ApprovalTimeout == 0 {
		c.ApprovalTimeout = 600 * time.Second
	}
	if c.StoryboardThreshold == 0 {
		c.StoryboardThreshold = 0.75
	}
	if c.MaxRegenAttempts == 0 {
		c.MaxRegenAttempts = 3
	}
	if c.MaxClipSeconds == 0 {
		c.MaxClipSeconds = 5
	}
	return c
}

// Clip is one generated motion segment
type Clip struct {
	URL          string
	LastFrameURL string
	DurationSec  float64
}

// External collaborators. Implementations live in internal/client; tests
// supply fakes.

type TextGenerator interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, referenceImages []string) (string, error)
}

type VideoGenerator interface {
	GenerateClip(ctx context.Context, prompt string, referenceImages []string, durationSec float64) (*Clip, error)
	ExtendClip(ctx context.Context, clipURL, prompt string) (*Clip, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice model.Voice) (audioURL string, durationSec float64, err error)
}

// CompileRequest is the composition hand-off to the external compositor
type CompileRequest struct {
	Clips       []model.SceneClip  `json:"clips"`
	Transitions []model.Transition `json:"transitions"`
	AudioTracks []model.VoiceTrack `json:"audioTracks"`
	OutputKey   string             `json:"outputKey"`
}

type Compositor interface {
	Compile(ctx context.Context, req *CompileRequest) (*model.FinalVideoArtifact, error)
}

// Collaborators bundles everything the orchestrator calls out to.
// Scorer may be nil, which disables consistency gating.
type Collaborators struct {
	Text       TextGenerator
	Image      ImageGenerator
	Video      VideoGenerator
	Speech     SpeechSynthesizer
	Compositor Compositor
	Scorer     Scorer
}

// Scorer mirrors consistency.Scorer so collaborator wiring stays in one place
type Scorer interface {
	Compare(ctx context.Context, candidate string, references []string, scoreContext string) (*model.DimensionScores, error)
}
