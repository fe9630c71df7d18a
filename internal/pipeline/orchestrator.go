package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adforge/api/internal/consistency"
	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/retry"
	"github.com/adforge/api/internal/store"
)

// ErrCancelled is returned by a run that observed a cancellation request
var ErrCancelled = errors.New("job cancelled")

// Orchestrator drives the ordered step sequence for one job. A job has
// exactly one owning orchestrator goroutine; it is the only writer of the
// job record.
type Orchestrator struct {
	store   store.JobStore
	exec    *retry.Executor
	gate    *consistency.Gate
	clients Collaborators
	cfg     Config
}

func New(st store.JobStore, exec *retry.Executor, clients Collaborators, cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		exec:    exec,
		clients: clients,
		cfg:     cfg.withDefaults(),
	}
	if clients.Scorer != nil {
		o.gate = consistency.NewGate(clients.Scorer)
	}
	return o
}

// Run executes the pipeline for a job and publishes a terminal status no
// matter how the run ends.
func (o *Orchestrator) Run(ctx context.Context, jobID string, payload *model.AdJobPayload) error {
	err := o.run(ctx, jobID, payload)

	switch {
	case errors.Is(err, ErrCancelled):
		o.publishTerminal(ctx, jobID, model.EventTypeProgress, model.JobStatusCancelled, "Job cancelled")
		return nil
	case err != nil:
		log.Printf("Ad job %s failed: %v", jobID, err)
		o.publishTerminal(ctx, jobID, model.EventTypeError, model.JobStatusFailed, err.Error())
		return err
	default:
		o.publish(ctx, &model.ProgressEvent{
			Type:     model.EventTypeComplete,
			JobID:    jobID,
			Status:   model.JobStatusCompleted,
			Progress: 100,
			Message:  "Ad generation complete",
		})
		log.Printf("Ad job %s completed", jobID)
		return nil
	}
}

func (o *Orchestrator) run(ctx context.Context, jobID string, payload *model.AdJobPayload) error {
	startIdx := 0
	if payload.ResumeFrom != "" {
		idx := StepIndex(payload.ResumeFrom)
		if idx < 0 {
			return fmt.Errorf("unknown resume step %q", payload.ResumeFrom)
		}
		// Every skipped step must come with its artifact; guessing a
		// missing one would leave the run in an undefined state.
		for i := 0; i < idx; i++ {
			name := Steps[i].Name
			art, ok := payload.Artifacts[name]
			if !ok {
				return fmt.Errorf("resume from %q requires a supplied artifact for %q", payload.ResumeFrom, name)
			}
			if err := o.saveArtifact(ctx, jobID, name, json.RawMessage(art)); err != nil {
				return err
			}
		}
		startIdx = idx
	}

	var (
		script     model.ScriptArtifact
		scenes     model.ScenePromptsArtifact
		storyboard model.StoryboardArtifact
		video      model.VideoArtifact
		audio      model.AudioArtifact
	)

	// Hydrate state for steps that were skipped by resume.
	for i := 0; i < startIdx; i++ {
		raw := payload.Artifacts[Steps[i].Name]
		var err error
		switch Steps[i].Name {
		case StepScriptGeneration:
			err = json.Unmarshal(raw, &script)
		case StepScenePrompts:
			err = json.Unmarshal(raw, &scenes)
		case StepStoryboard:
			err = json.Unmarshal(raw, &storyboard)
		case StepVideoGeneration:
			err = json.Unmarshal(raw, &video)
		case StepAudioGeneration:
			err = json.Unmarshal(raw, &audio)
		}
		if err != nil {
			return fmt.Errorf("invalid supplied artifact for %q: %w", Steps[i].Name, err)
		}
	}

	for i := startIdx; i < len(Steps); i++ {
		if cancelled, _ := o.store.CancelRequested(ctx, jobID); cancelled {
			return ErrCancelled
		}

		step := Steps[i]
		o.publish(ctx, &model.ProgressEvent{
			Type:        model.EventTypeProgress,
			JobID:       jobID,
			Status:      model.JobStatusRunning,
			CurrentStep: step.Name,
			Progress:    step.TargetProgress,
			Message:     step.Description,
		})

		var err error
		switch step.Name {
		case StepScriptGeneration:
			script, err = o.generateScript(ctx, payload)
		case StepScenePrompts:
			scenes, err = o.generateScenePrompts(ctx, payload, script)
		case StepStoryboard:
			storyboard, err = o.generateStoryboard(ctx, payload, scenes)
			if err == nil {
				o.publishStoryboardScores(ctx, jobID, step, &storyboard)
				if err = o.saveArtifactJSON(ctx, jobID, step.Name, storyboard); err != nil {
					return err
				}
				if !payload.AutoApprove {
					if err = o.awaitApproval(ctx, jobID, payload, scenes, &storyboard); err != nil {
						return err
					}
					if err = o.saveArtifactJSON(ctx, jobID, step.Name, storyboard); err != nil {
						return err
					}
				}
				continue
			}
		case StepVideoGeneration:
			video, err = o.generateVideo(ctx, payload, scenes, storyboard)
		case StepAudioGeneration:
			audio, err = o.generateAudio(ctx, payload, scenes)
		case StepComposition:
			var final model.FinalVideoArtifact
			final, err = o.compose(ctx, jobID, payload, video, audio)
			if err == nil {
				err = o.saveArtifactJSON(ctx, jobID, step.Name, final)
			}
			if err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		var artifact interface{}
		switch step.Name {
		case StepScriptGeneration:
			artifact = script
		case StepScenePrompts:
			artifact = scenes
		case StepVideoGeneration:
			artifact = video
		case StepAudioGeneration:
			artifact = audio
		}
		if artifact != nil {
			if err := o.saveArtifactJSON(ctx, jobID, step.Name, artifact); err != nil {
				return err
			}
		}
	}

	return nil
}

// generateScript runs the script_generation step
func (o *Orchestrator) generateScript(ctx context.Context, payload *model.AdJobPayload) (model.ScriptArtifact, error) {
	var script model.ScriptArtifact
	err := o.exec.Run(ctx, StepScriptGeneration, o.cfg.MaxRetries, func(ctx context.Context) error {
		raw, err := o.clients.Text.ChatCompletion(ctx, scriptSystemPrompt, buildScriptPrompt(&payload.Brief))
		if err != nil {
			return err
		}
		return parseJSONBlock(raw, &script)
	})
	return script, err
}

// generateScenePrompts runs the scene_prompts step
func (o *Orchestrator) generateScenePrompts(ctx context.Context, payload *model.AdJobPayload, script model.ScriptArtifact) (model.ScenePromptsArtifact, error) {
	var scenes model.ScenePromptsArtifact
	err := o.exec.Run(ctx, StepScenePrompts, o.cfg.MaxRetries, func(ctx context.Context) error {
		raw, err := o.clients.Text.ChatCompletion(ctx, scenePromptsSystemPrompt, buildScenePromptsPrompt(&payload.Brief, &script))
		if err != nil {
			return err
		}
		var parsed model.ScenePromptsArtifact
		if err := parseJSONBlock(raw, &parsed); err != nil {
			return err
		}
		if len(parsed.Scenes) == 0 {
			return errors.New("scene planning produced no scenes")
		}
		scenes = parsed
		return nil
	})
	for i := range scenes.Scenes {
		scenes.Scenes[i].Index = i
	}
	return scenes, err
}

// generateStoryboard runs the storyboard step: one still per scene,
// consistency-gated against the reference images when both a scorer and
// references are available. A frame that fails to generate is recorded as
// an error entry and the step continues.
func (o *Orchestrator) generateStoryboard(ctx context.Context, payload *model.AdJobPayload, scenes model.ScenePromptsArtifact) (model.StoryboardArtifact, error) {
	artifact := model.StoryboardArtifact{Frames: make([]model.StoryboardFrame, 0, len(scenes.Scenes))}

	prev := ""
	failed := 0
	for _, scene := range scenes.Scenes {
		frame, err := o.generateFrame(ctx, payload, scene, prev)
		if err != nil {
			failed++
			artifact.Frames = append(artifact.Frames, model.StoryboardFrame{Index: scene.Index, Error: err.Error()})
			continue
		}
		prev = frame.ImageURL
		artifact.Frames = append(artifact.Frames, frame)
	}

	if failed == len(scenes.Scenes) {
		return artifact, errors.New("all storyboard frames failed to generate")
	}

	o.analyzeStoryboard(&artifact)
	return artifact, nil
}

func (o *Orchestrator) generateFrame(ctx context.Context, payload *model.AdJobPayload, scene model.ScenePrompt, prev string) (model.StoryboardFrame, error) {
	generate := func(ctx context.Context) (string, error) {
		var url string
		err := o.exec.Run(ctx, StepStoryboard, o.cfg.MaxRetries, func(ctx context.Context) error {
			u, err := o.clients.Image.GenerateImage(ctx, scene.ImagePrompt, payload.ReferenceImages)
			url = u
			return err
		})
		return url, err
	}

	imageURL, err := generate(ctx)
	if err != nil {
		return model.StoryboardFrame{}, err
	}

	frame := model.StoryboardFrame{Index: scene.Index, ImageURL: imageURL}
	if o.gate == nil || len(payload.ReferenceImages) == 0 {
		return frame, nil
	}

	best, score, attempts, err := o.gate.GateAndRegenerate(
		ctx, imageURL, payload.ReferenceImages, prev, scene.ImagePrompt,
		o.cfg.StoryboardThreshold, o.cfg.MaxRegenAttempts,
		func(ctx context.Context, attempt int) (string, error) {
			return generate(ctx)
		})
	if err != nil {
		// Scoring trouble is not worth losing a usable frame over; keep
		// the best candidate seen and move on.
		log.Printf("Consistency gating error for frame %d: %v", scene.Index, err)
		if best == "" {
			return frame, nil
		}
	}

	frame.ImageURL = best
	frame.Score = score
	frame.Attempts = attempts
	return frame, nil
}

// analyzeStoryboard records the cross-frame variance report. Below-threshold
// groups are flagged, never blocked.
func (o *Orchestrator) analyzeStoryboard(artifact *model.StoryboardArtifact) {
	var scores []float64
	for _, f := range artifact.Frames {
		if f.Score != nil {
			scores = append(scores, f.Score.Score)
		}
	}
	if len(scores) < 2 {
		return
	}
	report := consistency.CheckGroup(scores)
	artifact.Group = &report
	if !report.Pass {
		log.Printf("Storyboard consistency spread above threshold (stddev %.3f, outliers %v)", report.StdDev, report.Outliers)
	}
}

// publishStoryboardScores republishes storyboard progress with per-frame
// scores attached.
func (o *Orchestrator) publishStoryboardScores(ctx context.Context, jobID string, step StepDef, artifact *model.StoryboardArtifact) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return
	}
	o.publish(ctx, &model.ProgressEvent{
		Type:        model.EventTypeProgress,
		JobID:       jobID,
		Status:      model.JobStatusRunning,
		CurrentStep: step.Name,
		Progress:    step.TargetProgress,
		Message:     "Storyboard ready",
		Data:        data,
	})
}

// awaitApproval blocks at the approval gate until an approval or decision
// event arrives, a cancel comes through, or the timeout elapses. Timeout and
// explicit rejection both fail the job.
func (o *Orchestrator) awaitApproval(ctx context.Context, jobID string, payload *model.AdJobPayload, scenes model.ScenePromptsArtifact, storyboard *model.StoryboardArtifact) error {
	events, stop, err := o.store.Subscribe(ctx, jobID)
	if err != nil {
		return fmt.Errorf("approval subscription failed: %w", err)
	}
	defer stop()

	o.publishAwaiting(ctx, jobID)

	timer := time.NewTimer(o.cfg.ApprovalTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("storyboard approval timed out after %s", o.cfg.ApprovalTimeout)
		case ev, ok := <-events:
			if !ok {
				return errors.New("event stream closed while awaiting approval")
			}
			switch ev.Type {
			case model.EventTypeApproval:
				var approval struct {
					Approved bool   `json:"approved"`
					Reason   string `json:"reason,omitempty"`
				}
				approval.Approved = true
				if len(ev.Data) > 0 {
					_ = json.Unmarshal(ev.Data, &approval)
				}
				if !approval.Approved {
					if approval.Reason == "" {
						approval.Reason = "storyboard rejected"
					}
					return fmt.Errorf("storyboard rejected: %s", approval.Reason)
				}
				return nil

			case model.EventTypeCancel:
				return ErrCancelled

			case model.EventTypeDecision:
				var decision model.DecisionPayload
				if err := json.Unmarshal(ev.Data, &decision); err != nil {
					log.Printf("Ignoring malformed decision for job %s: %v", jobID, err)
					continue
				}
				done, err := o.applyDecision(ctx, jobID, payload, scenes, storyboard, &decision)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
				// Back to waiting with a fresh timeout window.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(o.cfg.ApprovalTimeout)
				o.publishAwaiting(ctx, jobID)
			}
		}
	}
}

func (o *Orchestrator) publishAwaiting(ctx context.Context, jobID string) {
	o.publish(ctx, &model.ProgressEvent{
		Type:        model.EventTypeProgress,
		JobID:       jobID,
		Status:      model.JobStatusAwaitingApproval,
		CurrentStep: StepStoryboard,
		Progress:    Steps[StepIndex(StepStoryboard)].TargetProgress,
		Message:     "Awaiting storyboard approval",
	})
}

// applyDecision resolves one quality-gate decision. It returns done=true
// when the gate is released and the pipeline should continue.
func (o *Orchestrator) applyDecision(ctx context.Context, jobID string, payload *model.AdJobPayload, scenes model.ScenePromptsArtifact, storyboard *model.StoryboardArtifact, decision *model.DecisionPayload) (bool, error) {
	switch decision.Decision {
	case model.DecisionAccept:
		return true, nil

	case model.DecisionRegenerateSubset:
		if err := o.regenerateFrames(ctx, payload, scenes, storyboard, decision.ItemIndices); err != nil {
			return false, err
		}

	case model.DecisionRegenerateAll:
		all := make([]int, len(storyboard.Frames))
		for i := range all {
			all[i] = i
		}
		if err := o.regenerateFrames(ctx, payload, scenes, storyboard, all); err != nil {
			return false, err
		}

	case model.DecisionAddReferences:
		payload.ReferenceImages = append(payload.ReferenceImages, decision.ExtraReferences...)
		all := make([]int, len(storyboard.Frames))
		for i := range all {
			all[i] = i
		}
		if err := o.regenerateFrames(ctx, payload, scenes, storyboard, all); err != nil {
			return false, err
		}

	default:
		log.Printf("Ignoring unknown decision %q for job %s", decision.Decision, jobID)
		return false, nil
	}

	o.analyzeStoryboard(storyboard)
	if err := o.saveArtifactJSON(ctx, jobID, StepStoryboard, *storyboard); err != nil {
		return false, err
	}
	o.publishStoryboardScores(ctx, jobID, Steps[StepIndex(StepStoryboard)], storyboard)
	return false, nil
}

// regenerateFrames re-runs selected storyboard frames in sequence order,
// threading each frame's predecessor for continuity scoring.
func (o *Orchestrator) regenerateFrames(ctx context.Context, payload *model.AdJobPayload, scenes model.ScenePromptsArtifact, storyboard *model.StoryboardArtifact, indices []int) error {
	selected := make(map[int]bool, len(indices))
	for _, idx := range indices {
		selected[idx] = true
	}

	for i := range storyboard.Frames {
		if !selected[i] {
			continue
		}
		if i >= len(scenes.Scenes) {
			continue
		}
		prev := ""
		if i > 0 {
			prev = storyboard.Frames[i-1].ImageURL
		}
		frame, err := o.generateFrame(ctx, payload, scenes.Scenes[i], prev)
		if err != nil {
			storyboard.Frames[i] = model.StoryboardFrame{Index: i, Error: err.Error()}
			continue
		}
		storyboard.Frames[i] = frame
	}
	return nil
}

// generateVideo runs the video_generation step. Scenes are processed
// strictly in order: each scene's generation request carries the previous
// clip's trailing frame so motion continues across cuts. An exhausted
// per-item retry fails the whole job.
func (o *Orchestrator) generateVideo(ctx context.Context, payload *model.AdJobPayload, scenes model.ScenePromptsArtifact, storyboard model.StoryboardArtifact) (model.VideoArtifact, error) {
	artifact := model.VideoArtifact{Clips: make([]model.SceneClip, 0, len(scenes.Scenes))}

	prevLastFrame := ""
	for _, scene := range scenes.Scenes {
		refs := make([]string, 0, 2)
		if scene.Index < len(storyboard.Frames) && storyboard.Frames[scene.Index].ImageURL != "" {
			refs = append(refs, storyboard.Frames[scene.Index].ImageURL)
		}
		if prevLastFrame != "" {
			refs = append(refs, prevLastFrame)
		}

		duration := scene.DurationSec
		if duration <= 0 {
			duration = o.cfg.MaxClipSeconds
		}

		var clip *Clip
		err := o.exec.Run(ctx, StepVideoGeneration, o.cfg.MaxRetries, func(ctx context.Context) error {
			c, err := o.clients.Video.GenerateClip(ctx, scene.MotionPrompt, refs, minFloat(duration, o.cfg.MaxClipSeconds))
			clip = c
			return err
		})
		if err != nil {
			return artifact, err
		}

		// Long scenes are produced by extending the base clip until the
		// planned duration is covered.
		for clip.DurationSec < duration {
			var extended *Clip
			err := o.exec.Run(ctx, StepVideoGeneration, o.cfg.MaxRetries, func(ctx context.Context) error {
				e, err := o.clients.Video.ExtendClip(ctx, clip.URL, scene.MotionPrompt)
				extended = e
				return err
			})
			if err != nil {
				return artifact, err
			}
			if extended.DurationSec <= clip.DurationSec {
				break
			}
			clip = extended
		}

		sceneClip := model.SceneClip{
			Index:        scene.Index,
			ClipURL:      clip.URL,
			LastFrameURL: clip.LastFrameURL,
			DurationSec:  clip.DurationSec,
		}
		o.checkClipFrame(ctx, payload, scene, &sceneClip, prevLastFrame)
		artifact.Clips = append(artifact.Clips, sceneClip)
		prevLastFrame = clip.LastFrameURL
	}

	return artifact, nil
}

// checkClipFrame samples a generated clip's trailing frame against the
// reference images. A score below the flag threshold marks the clip; it is
// never regenerated or failed over this.
func (o *Orchestrator) checkClipFrame(ctx context.Context, payload *model.AdJobPayload, scene model.ScenePrompt, clip *model.SceneClip, prevLastFrame string) {
	if o.gate == nil || len(payload.ReferenceImages) == 0 || clip.LastFrameURL == "" {
		return
	}

	score, err := o.gate.ScoreItem(ctx, clip.LastFrameURL, payload.ReferenceImages, prevLastFrame, scene.MotionPrompt)
	if err != nil {
		log.Printf("Frame consistency check failed for clip %d: %v", clip.Index, err)
		return
	}

	clip.FrameScore = score
	if score.Score < consistency.FrameFlagThreshold {
		clip.Flagged = true
		log.Printf("Clip %d frame consistency %.2f below flag threshold", clip.Index, score.Score)
	}
}

// generateAudio runs the audio_generation step: one voiceover track per
// scene with a voice line. An exhausted per-item retry fails the job.
func (o *Orchestrator) generateAudio(ctx context.Context, payload *model.AdJobPayload, scenes model.ScenePromptsArtifact) (model.AudioArtifact, error) {
	artifact := model.AudioArtifact{}

	voice := payload.Brief.Voice
	if voice == "" {
		voice = model.VoiceNarratorFemale
	}

	for _, scene := range scenes.Scenes {
		if scene.VoiceLine == "" {
			continue
		}

		var url string
		var duration float64
		err := o.exec.Run(ctx, StepAudioGeneration, o.cfg.MaxRetries, func(ctx context.Context) error {
			u, d, err := o.clients.Speech.Synthesize(ctx, scene.VoiceLine, voice)
			url, duration = u, d
			return err
		})
		if err != nil {
			return artifact, err
		}

		artifact.Tracks = append(artifact.Tracks, model.VoiceTrack{
			Index:       scene.Index,
			AudioURL:    url,
			DurationSec: duration,
		})
	}

	return artifact, nil
}

// compose runs the composition step
func (o *Orchestrator) compose(ctx context.Context, jobID string, payload *model.AdJobPayload, video model.VideoArtifact, audio model.AudioArtifact) (model.FinalVideoArtifact, error) {
	transitions := make([]model.Transition, 0)
	for i := 1; i < len(video.Clips); i++ {
		transitions = append(transitions, model.TransitionFade)
	}

	req := &CompileRequest{
		Clips:       video.Clips,
		Transitions: transitions,
		AudioTracks: audio.Tracks,
		OutputKey:   fmt.Sprintf("ads/%s/%s/final.mp4", payload.ProjectID, jobID),
	}

	var final model.FinalVideoArtifact
	err := o.exec.Run(ctx, StepComposition, o.cfg.MaxRetries, func(ctx context.Context) error {
		f, err := o.clients.Compositor.Compile(ctx, req)
		if err != nil {
			return err
		}
		final = *f
		return nil
	})
	return final, err
}

func (o *Orchestrator) publish(ctx context.Context, ev *model.ProgressEvent) {
	if err := o.store.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish event for job %s: %v", ev.JobID, err)
	}
}

// publishTerminal reads back the last progress so terminal events keep it
func (o *Orchestrator) publishTerminal(ctx context.Context, jobID, evType string, status model.JobStatus, message string) {
	progress := 0
	step := ""
	if job, err := o.store.GetJob(ctx, jobID); err == nil {
		progress = job.Progress
		step = job.CurrentStep
	}
	o.publish(ctx, &model.ProgressEvent{
		Type:        evType,
		JobID:       jobID,
		Status:      status,
		CurrentStep: step,
		Progress:    progress,
		Message:     message,
	})
}

func (o *Orchestrator) saveArtifactJSON(ctx context.Context, jobID, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s artifact: %w", name, err)
	}
	return o.saveArtifact(ctx, jobID, name, data)
}

func (o *Orchestrator) saveArtifact(ctx context.Context, jobID, name string, data json.RawMessage) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Artifacts == nil {
		job.Artifacts = make(map[string]json.RawMessage)
	}
	job.Artifacts[name] = data
	return o.store.SaveJob(ctx, job)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
