package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adforge/api/internal/model"
)

const scriptSystemPrompt = `You are a senior short-form video ad copywriter.
You write punchy, conversion-focused scripts for vertical video ads.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`

const scenePromptsSystemPrompt = `You are a storyboard director for short-form video ads.
You break an ad script into visually concrete scenes for an image and video
generation model. Prompts must be self-contained: describe subject, setting,
lighting and camera framing without referring to other scenes.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`

func buildScriptPrompt(brief *model.AdBrief) string {
	keyPoints := strings.Join(brief.KeyPoints, "; ")
	if keyPoints == "" {
		keyPoints = "none supplied"
	}

	return fmt.Sprintf(`Write a %d-second video ad script for %s by %s.
Tone: %s
Target audience: %s
Key points to hit: %s

The script needs a hook (first 2 seconds), a body of short voiceover lines,
and a call to action.

Output as JSON: {"hook": "...", "body": ["line1", "line2"], "callToAction": "..."}`,
		brief.DurationSec, brief.Product, brief.Brand, brief.Tone, brief.Audience, keyPoints)
}

func buildScenePromptsPrompt(brief *model.AdBrief, script *model.ScriptArtifact) string {
	return fmt.Sprintf(`Break this %d-second ad script into exactly %d scenes for a %s video.

Hook: %s
Body: %s
Call to action: %s

Each scene needs an image generation prompt (the key still), a motion prompt
(how the shot moves), the voiceover line spoken over it, and a duration in
seconds. Durations must sum to roughly %d seconds.

Output as JSON: {"scenes": [{"imagePrompt": "...", "motionPrompt": "...", "voiceLine": "...", "durationSec": 4}]}`,
		brief.DurationSec, brief.SceneCount, brief.AspectRatio,
		script.Hook, strings.Join(script.Body, " / "), script.CallToAction,
		brief.DurationSec)
}

// parseJSONBlock extracts and unmarshals JSON from a model response that may
// contain extra text around it
func parseJSONBlock(s string, v interface{}) error {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		s = s[start : end+1]
	}

	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	return nil
}
