package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/retry"
	"github.com/adforge/api/internal/store"
)

const testScriptJSON = `{"hook":"Tired of flat coffee?","body":["Meet the AeroBrew.","Cold brew in 90 seconds."],"callToAction":"Order yours today"}`

func testScenesJSON(n int) string {
	scenes := make([]string, n)
	for i := 0; i < n; i++ {
		scenes[i] = fmt.Sprintf(`{"index":%d,"imagePrompt":"scene %d still","motionPrompt":"scene %d motion","voiceLine":"line %d","durationSec":4}`, i, i, i, i)
	}
	return `{"scenes":[` + strings.Join(scenes, ",") + `]}`
}

type fakeText struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *fakeText) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.responses) {
		return "", errors.New("unexpected chat completion call")
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

type fakeImage struct {
	mu      sync.Mutex
	n       int
	prompts []string
	refs    [][]string
	failFor string // prompt substring that always errors
}

func (f *fakeImage) GenerateImage(ctx context.Context, prompt string, referenceImages []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && strings.Contains(prompt, f.failFor) {
		return "", errors.New("image model refused prompt")
	}
	f.n++
	f.prompts = append(f.prompts, prompt)
	f.refs = append(f.refs, append([]string(nil), referenceImages...))
	return fmt.Sprintf("img-%d.png", f.n), nil
}

type fakeVideo struct {
	mu   sync.Mutex
	n    int
	refs [][]string
	err  error
}

func (f *fakeVideo) GenerateClip(ctx context.Context, prompt string, referenceImages []string, durationSec float64) (*Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.n++
	f.refs = append(f.refs, append([]string(nil), referenceImages...))
	return &Clip{
		URL:          fmt.Sprintf("clip-%d.mp4", f.n),
		LastFrameURL: fmt.Sprintf("last-%d.png", f.n),
		DurationSec:  durationSec,
	}, nil
}

func (f *fakeVideo) ExtendClip(ctx context.Context, clipURL, prompt string) (*Clip, error) {
	return nil, errors.New("extend not expected in this test")
}

type fakeSpeech struct {
	mu     sync.Mutex
	n      int
	voices []model.Voice
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string, voice model.Voice) (string, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.voices = append(f.voices, voice)
	return fmt.Sprintf("voice-%d.mp3", f.n), 2.5, nil
}

type fakeCompositor struct {
	mu  sync.Mutex
	req *CompileRequest
}

func (f *fakeCompositor) Compile(ctx context.Context, req *CompileRequest) (*model.FinalVideoArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	return &model.FinalVideoArtifact{VideoURL: "final.mp4", DurationSec: 8}, nil
}

// fakeScorer maps a candidate URL to a uniform dimension score.
type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]float64
}

func (f *fakeScorer) Compare(ctx context.Context, candidate string, references []string, scoreContext string) (*model.DimensionScores, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.scores[candidate]
	if !ok {
		return nil, fmt.Errorf("no score configured for %s", candidate)
	}
	return &model.DimensionScores{
		Identity:         v,
		Continuity:       v,
		PromptAdherence:  v,
		TechnicalQuality: v,
	}, nil
}

type testEnv struct {
	store      *store.Memory
	text       *fakeText
	image      *fakeImage
	video      *fakeVideo
	speech     *fakeSpeech
	compositor *fakeCompositor
}

func newTestEnv() *testEnv {
	return &testEnv{
		store:      store.NewMemory(),
		text:       &fakeText{responses: []string{testScriptJSON, testScenesJSON(2)}},
		image:      &fakeImage{},
		video:      &fakeVideo{},
		speech:     &fakeSpeech{},
		compositor: &fakeCompositor{},
	}
}

func (e *testEnv) orchestrator(scorer Scorer, cfg Config) *Orchestrator {
	return New(e.store, retry.NewExecutor(), Collaborators{
		Text:       e.text,
		Image:      e.image,
		Video:      e.video,
		Speech:     e.speech,
		Compositor: e.compositor,
		Scorer:     scorer,
	}, cfg)
}

func (e *testEnv) createJob(t *testing.T, jobID string) {
	t.Helper()
	err := e.store.CreateJob(context.Background(), &model.Job{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

func basePayload() *model.AdJobPayload {
	return &model.AdJobPayload{
		ProjectID: "proj-1",
		Brief: model.AdBrief{
			Product:     "AeroBrew cold brew maker",
			Brand:       "AeroBrew",
			Tone:        model.ToneBold,
			SceneCount:  2,
			DurationSec: 15,
			AspectRatio: model.AspectVertical,
		},
		AutoApprove: true,
	}
}

func waitForJobStatus(t *testing.T, st *store.Memory, jobID string, want model.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
}

func TestRunHappyPathProgressAndArtifacts(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	events, stop, err := env.store.Subscribe(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := o.Run(context.Background(), "job-1", basePayload()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var (
		progress  []int
		lastEvent model.ProgressEvent
		stepOrder []string
	)
	for ev := range events {
		progress = append(progress, ev.Progress)
		if ev.CurrentStep != "" {
			if want := Steps[StepIndex(ev.CurrentStep)].TargetProgress; ev.Progress != want {
				t.Errorf("progress at %s = %d, want %d", ev.CurrentStep, ev.Progress, want)
			}
			if len(stepOrder) == 0 || stepOrder[len(stepOrder)-1] != ev.CurrentStep {
				stepOrder = append(stepOrder, ev.CurrentStep)
			}
		}
		lastEvent = ev
	}

	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if lastEvent.Type != model.EventTypeComplete || lastEvent.Progress != 100 {
		t.Errorf("last event = %+v, want complete at 100", lastEvent)
	}

	wantOrder := []string{StepScriptGeneration, StepScenePrompts, StepStoryboard, StepVideoGeneration, StepAudioGeneration, StepComposition}
	if len(stepOrder) != len(wantOrder) {
		t.Fatalf("step order = %v, want %v", stepOrder, wantOrder)
	}
	for i := range wantOrder {
		if stepOrder[i] != wantOrder[i] {
			t.Fatalf("step order = %v, want %v", stepOrder, wantOrder)
		}
	}

	job, err := env.store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	for _, step := range wantOrder {
		if _, ok := job.Artifacts[step]; !ok {
			t.Errorf("missing artifact for step %s", step)
		}
	}

	// Each scene had a voice line and no voice was chosen, so the default
	// narrator applies.
	if env.speech.n != 2 {
		t.Errorf("speech calls = %d, want 2", env.speech.n)
	}
	for _, v := range env.speech.voices {
		if v != model.VoiceNarratorFemale {
			t.Errorf("voice = %s, want default narrator", v)
		}
	}

	if env.compositor.req == nil {
		t.Fatal("compositor was never called")
	}
	if got := len(env.compositor.req.Transitions); got != 1 {
		t.Errorf("transitions = %d, want clips-1 = 1", got)
	}
	if !strings.HasPrefix(env.compositor.req.OutputKey, "ads/proj-1/job-1/") {
		t.Errorf("output key = %q", env.compositor.req.OutputKey)
	}
}

func TestRunThreadsContinuityAcrossClips(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	if err := o.Run(context.Background(), "job-1", basePayload()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(env.video.refs) != 2 {
		t.Fatalf("video calls = %d, want 2", len(env.video.refs))
	}
	// First clip sees only its storyboard frame; the second also carries the
	// first clip's trailing frame.
	if len(env.video.refs[0]) != 1 || env.video.refs[0][0] != "img-1.png" {
		t.Errorf("clip 0 refs = %v", env.video.refs[0])
	}
	if len(env.video.refs[1]) != 2 || env.video.refs[1][1] != "last-1.png" {
		t.Errorf("clip 1 refs = %v, want storyboard frame then last-1.png", env.video.refs[1])
	}
}

func TestRunResumeSkipsCompletedSteps(t *testing.T) {
	env := newTestEnv()
	env.text.responses = nil // any LLM call is a failure
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.ResumeFrom = StepVideoGeneration
	payload.Artifacts = map[string]json.RawMessage{
		StepScriptGeneration: json.RawMessage(testScriptJSON),
		StepScenePrompts:     json.RawMessage(testScenesJSON(2)),
		StepStoryboard:       json.RawMessage(`{"frames":[{"index":0,"imageUrl":"prior-0.png"},{"index":1,"imageUrl":"prior-1.png"}]}`),
	}

	if err := o.Run(context.Background(), "job-1", payload); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if env.text.calls != 0 {
		t.Errorf("text generator called %d times on resume, want 0", env.text.calls)
	}
	if env.image.n != 0 {
		t.Errorf("image generator called %d times on resume, want 0", env.image.n)
	}
	if len(env.video.refs) != 2 || env.video.refs[0][0] != "prior-0.png" {
		t.Errorf("video refs = %v, want supplied storyboard frames", env.video.refs)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if _, ok := job.Artifacts[StepScriptGeneration]; !ok {
		t.Error("supplied script artifact was not persisted")
	}
}

func TestRunResumeRequiresSkippedArtifacts(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.ResumeFrom = StepStoryboard
	payload.Artifacts = map[string]json.RawMessage{
		StepScriptGeneration: json.RawMessage(testScriptJSON),
	}

	err := o.Run(context.Background(), "job-1", payload)
	if err == nil || !strings.Contains(err.Error(), StepScenePrompts) {
		t.Fatalf("Run error = %v, want missing %s artifact", err, StepScenePrompts)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
}

func TestRunRejectsUnknownResumeStep(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.ResumeFrom = "color_grading"

	if err := o.Run(context.Background(), "job-1", payload); err == nil {
		t.Fatal("Run accepted an unknown resume step")
	}
}

func TestRunCancelledBeforeFirstStep(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	if err := env.store.RequestCancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	if err := o.Run(context.Background(), "job-1", basePayload()); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}
	if env.text.calls != 0 {
		t.Errorf("cancelled run still made %d text calls", env.text.calls)
	}
}

func TestStoryboardToleratesSingleFrameFailure(t *testing.T) {
	env := newTestEnv()
	env.image.failFor = "scene 1 still"
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	if err := o.Run(context.Background(), "job-1", basePayload()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	var storyboard model.StoryboardArtifact
	if err := json.Unmarshal(job.Artifacts[StepStoryboard], &storyboard); err != nil {
		t.Fatalf("unmarshal storyboard: %v", err)
	}
	if len(storyboard.Frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(storyboard.Frames))
	}
	if storyboard.Frames[0].Error != "" || storyboard.Frames[0].ImageURL == "" {
		t.Errorf("frame 0 = %+v, want success", storyboard.Frames[0])
	}
	if storyboard.Frames[1].Error == "" || storyboard.Frames[1].ImageURL != "" {
		t.Errorf("frame 1 = %+v, want recorded failure", storyboard.Frames[1])
	}

	// The clip for the failed frame is generated without a still reference.
	if len(env.video.refs) != 2 {
		t.Fatalf("video calls = %d, want 2", len(env.video.refs))
	}
}

func TestStoryboardFailsWhenAllFramesFail(t *testing.T) {
	env := newTestEnv()
	env.image.failFor = "still"
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	if err := o.Run(context.Background(), "job-1", basePayload()); err == nil {
		t.Fatal("Run succeeded with every storyboard frame failed")
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
}

func TestVideoFailurePropagates(t *testing.T) {
	env := newTestEnv()
	env.video.err = errors.New("render farm rejected request")
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	err := o.Run(context.Background(), "job-1", basePayload())
	if err == nil {
		t.Fatal("Run succeeded despite clip generation failure")
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.CurrentStep != StepVideoGeneration {
		t.Errorf("current step = %s, want %s", job.CurrentStep, StepVideoGeneration)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "render farm") {
		t.Errorf("job error = %v, want clip failure message", job.Error)
	}
}

func TestConsistencyGateRegeneratesWeakFrame(t *testing.T) {
	env := newTestEnv()
	scorer := &fakeScorer{scores: map[string]float64{
		"img-1.png": 0.90, // first frame passes outright
		"img-2.png": 0.60, // second frame is below threshold
		"img-3.png": 0.80, // its regeneration passes
	}}
	env.createJob(t, "job-1")
	o := env.orchestrator(scorer, Config{})

	payload := basePayload()
	payload.ReferenceImages = []string{"brand-ref.png"}

	if err := o.Run(context.Background(), "job-1", payload); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	var storyboard model.StoryboardArtifact
	if err := json.Unmarshal(job.Artifacts[StepStoryboard], &storyboard); err != nil {
		t.Fatalf("unmarshal storyboard: %v", err)
	}

	if storyboard.Frames[0].Attempts != 0 {
		t.Errorf("frame 0 attempts = %d, want 0", storyboard.Frames[0].Attempts)
	}
	if storyboard.Frames[1].ImageURL != "img-3.png" {
		t.Errorf("frame 1 url = %s, want regenerated img-3.png", storyboard.Frames[1].ImageURL)
	}
	if storyboard.Frames[1].Attempts != 1 {
		t.Errorf("frame 1 attempts = %d, want 1", storyboard.Frames[1].Attempts)
	}
	if storyboard.Frames[1].Score == nil || storyboard.Frames[1].Score.Score != 0.80 {
		t.Errorf("frame 1 score = %+v, want 0.80", storyboard.Frames[1].Score)
	}
	if storyboard.Group == nil {
		t.Error("group consistency report missing")
	}
}

func TestWeakClipFrameIsFlaggedNotBlocked(t *testing.T) {
	env := newTestEnv()
	scorer := &fakeScorer{scores: map[string]float64{
		"img-1.png":  0.90,
		"img-2.png":  0.90,
		"last-1.png": 0.30, // weighted 0.51, below the 0.65 flag line
		"last-2.png": 0.85,
	}}
	env.createJob(t, "job-1")
	o := env.orchestrator(scorer, Config{})

	payload := basePayload()
	payload.ReferenceImages = []string{"brand-ref.png"}

	if err := o.Run(context.Background(), "job-1", payload); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed despite the flagged clip", job.Status)
	}

	var video model.VideoArtifact
	if err := json.Unmarshal(job.Artifacts[StepVideoGeneration], &video); err != nil {
		t.Fatalf("unmarshal video: %v", err)
	}
	if len(video.Clips) != 2 {
		t.Fatalf("clips = %d, want 2", len(video.Clips))
	}

	if video.Clips[0].FrameScore == nil {
		t.Fatal("clip 0 frame score missing")
	}
	if !video.Clips[0].Flagged {
		t.Errorf("clip 0 score %.2f not flagged", video.Clips[0].FrameScore.Score)
	}

	if video.Clips[1].FrameScore == nil {
		t.Fatal("clip 1 frame score missing")
	}
	if video.Clips[1].Flagged {
		t.Errorf("clip 1 score %.2f flagged, want clean", video.Clips[1].FrameScore.Score)
	}

	// One video call per scene: the weak clip was marked, never redone.
	if env.video.n != 2 {
		t.Errorf("video calls = %d, want 2", env.video.n)
	}
}

func TestApprovalGateAccept(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.AutoApprove = false

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), "job-1", payload) }()

	waitForJobStatus(t, env.store, "job-1", model.JobStatusAwaitingApproval)
	if err := env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeApproval,
		JobID: "job-1",
	}); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
}

func TestApprovalGateRejectionFailsJob(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.AutoApprove = false

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), "job-1", payload) }()

	waitForJobStatus(t, env.store, "job-1", model.JobStatusAwaitingApproval)
	env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeApproval,
		JobID: "job-1",
		Data:  json.RawMessage(`{"approved":false,"reason":"off brand"}`),
	})

	err := <-done
	if err == nil || !strings.Contains(err.Error(), "off brand") {
		t.Fatalf("Run error = %v, want rejection reason", err)
	}
	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if len(env.video.refs) != 0 {
		t.Error("clip generation ran after rejection")
	}
}

func TestApprovalGateTimeoutFailsJob(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{ApprovalTimeout: 30 * time.Millisecond})

	payload := basePayload()
	payload.AutoApprove = false

	err := o.Run(context.Background(), "job-1", payload)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Run error = %v, want approval timeout", err)
	}
	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
}

func TestApprovalGateCancel(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.AutoApprove = false

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), "job-1", payload) }()

	waitForJobStatus(t, env.store, "job-1", model.JobStatusAwaitingApproval)
	env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeCancel,
		JobID: "job-1",
	})

	if err := <-done; err != nil {
		t.Fatalf("Run after gate cancel = %v, want nil", err)
	}
	job, _ := env.store.GetJob(context.Background(), "job-1")
	if job.Status != model.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}
}

func TestDecisionRegenerateSubset(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.AutoApprove = false

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), "job-1", payload) }()

	waitForJobStatus(t, env.store, "job-1", model.JobStatusAwaitingApproval)

	// Events on one job channel arrive in order, so the accept can be
	// queued right behind the decision.
	env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeDecision,
		JobID: "job-1",
		Data:  json.RawMessage(`{"decision":"regenerate_subset","itemIndices":[1]}`),
	})
	env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeApproval,
		JobID: "job-1",
	})

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, _ := env.store.GetJob(context.Background(), "job-1")
	var storyboard model.StoryboardArtifact
	if err := json.Unmarshal(job.Artifacts[StepStoryboard], &storyboard); err != nil {
		t.Fatalf("unmarshal storyboard: %v", err)
	}
	if storyboard.Frames[0].ImageURL != "img-1.png" {
		t.Errorf("frame 0 url = %s, want untouched img-1.png", storyboard.Frames[0].ImageURL)
	}
	if storyboard.Frames[1].ImageURL != "img-3.png" {
		t.Errorf("frame 1 url = %s, want regenerated img-3.png", storyboard.Frames[1].ImageURL)
	}
}

func TestDecisionAddReferencesRegeneratesAll(t *testing.T) {
	env := newTestEnv()
	env.createJob(t, "job-1")
	o := env.orchestrator(nil, Config{})

	payload := basePayload()
	payload.AutoApprove = false

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), "job-1", payload) }()

	waitForJobStatus(t, env.store, "job-1", model.JobStatusAwaitingApproval)
	env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeDecision,
		JobID: "job-1",
		Data:  json.RawMessage(`{"decision":"add_references","extraReferences":["late-ref.png"]}`),
	})
	env.store.Signal(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventTypeDecision,
		JobID: "job-1",
		Data:  json.RawMessage(`{"decision":"accept"}`),
	})

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Both frames redone, and the late reference reaches the image model.
	env.image.mu.Lock()
	defer env.image.mu.Unlock()
	if env.image.n != 4 {
		t.Fatalf("image calls = %d, want 4 (2 initial + 2 regenerated)", env.image.n)
	}
	lastRefs := env.image.refs[len(env.image.refs)-1]
	found := false
	for _, r := range lastRefs {
		if r == "late-ref.png" {
			found = true
		}
	}
	if !found {
		t.Errorf("regeneration refs = %v, want to include late-ref.png", lastRefs)
	}
}
