package model

// Step artifacts. Each pipeline step persists exactly one of these under its
// step name; a resumed run supplies them for the steps it skips.

// ScriptArtifact is the result of the script_generation step
type ScriptArtifact struct {
	Hook         string   `json:"hook"`
	Body         []string `json:"body"`
	CallToAction string   `json:"callToAction"`
}

// ScenePrompt describes one scene planned by the scene_prompts step
type ScenePrompt struct {
	Index        int     `json:"index"`
	ImagePrompt  string  `json:"imagePrompt"`
	MotionPrompt string  `json:"motionPrompt"`
	VoiceLine    string  `json:"voiceLine,omitempty"`
	DurationSec  float64 `json:"durationSec"`
}

// ScenePromptsArtifact is the result of the scene_prompts step
type ScenePromptsArtifact struct {
	Scenes []ScenePrompt `json:"scenes"`
}

// StoryboardFrame is one generated still, possibly consistency-scored.
// A frame that failed to generate has an empty ImageURL and a non-empty Error.
type StoryboardFrame struct {
	Index    int                     `json:"index"`
	ImageURL string                  `json:"imageUrl,omitempty"`
	Score    *ConsistencyScoreResult `json:"score,omitempty"`
	Attempts int                     `json:"attempts,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// StoryboardArtifact is the result of the storyboard step
type StoryboardArtifact struct {
	Frames []StoryboardFrame       `json:"frames"`
	Group  *GroupConsistencyReport `json:"group,omitempty"`
}

// SceneClip is one generated motion clip. FrameScore and Flagged carry the
// sampled-frame consistency check: a weak clip is marked, never regenerated.
type SceneClip struct {
	Index        int                     `json:"index"`
	ClipURL      string                  `json:"clipUrl"`
	LastFrameURL string                  `json:"lastFrameUrl,omitempty"`
	DurationSec  float64                 `json:"durationSec"`
	FrameScore   *ConsistencyScoreResult `json:"frameScore,omitempty"`
	Flagged      bool                    `json:"flagged,omitempty"`
}

// VideoArtifact is the result of the video_generation step
type VideoArtifact struct {
	Clips []SceneClip `json:"clips"`
}

// VoiceTrack is one synthesized voiceover line
type VoiceTrack struct {
	Index       int     `json:"index"`
	AudioURL    string  `json:"audioUrl"`
	DurationSec float64 `json:"durationSec"`
}

// AudioArtifact is the result of the audio_generation step
type AudioArtifact struct {
	Tracks []VoiceTrack `json:"tracks"`
}

// FinalVideoArtifact is the result of the composition step
type FinalVideoArtifact struct {
	VideoURL     string  `json:"videoUrl"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	DurationSec  float64 `json:"durationSec"`
}
