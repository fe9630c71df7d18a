package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/pipeline"
)

// Mock collaborators for development without upstream API keys. They return
// deterministic placeholder assets after a short delay so progress events
// still arrive in a realistic order.

const mockDelay = 200 * time.Millisecond

func mockSleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mockDelay):
		return nil
	}
}

// MockTextGenerator returns canned script and scene-plan JSON
type MockTextGenerator struct{}

func (m *MockTextGenerator) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	if err := mockSleep(ctx); err != nil {
		return "", err
	}
	if strings.Contains(system, "scene") {
		return `{"scenes":[
			{"index":0,"imagePrompt":"Product hero shot on a clean studio background","motionPrompt":"Slow push-in on the product","voiceLine":"Meet the product everyone is talking about.","durationSec":4},
			{"index":1,"imagePrompt":"Close-up of the product in use, hands visible","motionPrompt":"Hands demonstrate the product, natural movement","voiceLine":"Designed to make every day easier.","durationSec":4},
			{"index":2,"imagePrompt":"Product with brand logo, call to action overlay","motionPrompt":"Logo settles, subtle shimmer","voiceLine":"Get yours today.","durationSec":3}
		]}`, nil
	}
	return `{"hook":"Stop scrolling. This changes everything.","body":["Meet the product built for people like you.","Loved by thousands, ready for you."],"callToAction":"Tap to get yours today"}`, nil
}

// MockImageGenerator returns placeholder storyboard stills. One instance is
// shared across concurrent jobs, so the counter is locked.
type MockImageGenerator struct {
	mu sync.Mutex
	n  int
}

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string, referenceImages []string) (string, error) {
	if err := mockSleep(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.n++
	n := m.n
	m.mu.Unlock()
	return fmt.Sprintf("https://mock.adforge.dev/frames/frame-%d.png", n), nil
}

// MockVideoGenerator returns placeholder clips
type MockVideoGenerator struct {
	mu sync.Mutex
	n  int
}

func (m *MockVideoGenerator) next() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return m.n
}

func (m *MockVideoGenerator) GenerateClip(ctx context.Context, prompt string, referenceImages []string, durationSec float64) (*pipeline.Clip, error) {
	if err := mockSleep(ctx); err != nil {
		return nil, err
	}
	n := m.next()
	return &pipeline.Clip{
		URL:          fmt.Sprintf("https://mock.adforge.dev/clips/clip-%d.mp4", n),
		LastFrameURL: fmt.Sprintf("https://mock.adforge.dev/clips/clip-%d-last.png", n),
		DurationSec:  durationSec,
	}, nil
}

func (m *MockVideoGenerator) ExtendClip(ctx context.Context, clipURL, prompt string) (*pipeline.Clip, error) {
	if err := mockSleep(ctx); err != nil {
		return nil, err
	}
	n := m.next()
	return &pipeline.Clip{
		URL:          fmt.Sprintf("https://mock.adforge.dev/clips/clip-%d.mp4", n),
		LastFrameURL: fmt.Sprintf("https://mock.adforge.dev/clips/clip-%d-last.png", n),
		DurationSec:  10,
	}, nil
}

// MockSpeechSynthesizer returns placeholder voiceover tracks
type MockSpeechSynthesizer struct {
	mu sync.Mutex
	n  int
}

func (m *MockSpeechSynthesizer) Synthesize(ctx context.Context, text string, voice model.Voice) (string, float64, error) {
	if err := mockSleep(ctx); err != nil {
		return "", 0, err
	}
	m.mu.Lock()
	m.n++
	n := m.n
	m.mu.Unlock()
	return fmt.Sprintf("https://mock.adforge.dev/audio/voice-%d.mp3", n), 2.5, nil
}

// MockCompositor returns a placeholder final video
type MockCompositor struct{}

func (m *MockCompositor) Compile(ctx context.Context, req *pipeline.CompileRequest) (*model.FinalVideoArtifact, error) {
	if err := mockSleep(ctx); err != nil {
		return nil, err
	}
	total := 0.0
	for _, c := range req.Clips {
		total += c.DurationSec
	}
	return &model.FinalVideoArtifact{
		VideoURL:     "https://mock.adforge.dev/final/" + strings.TrimPrefix(req.OutputKey, "ads/"),
		ThumbnailURL: "https://mock.adforge.dev/final/thumbnail.png",
		DurationSec:  total,
	}, nil
}

// MockCollaborators bundles the full mock set
func MockCollaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Text:       &MockTextGenerator{},
		Image:      &MockImageGenerator{},
		Video:      &MockVideoGenerator{},
		Speech:     &MockSpeechSynthesizer{},
		Compositor: &MockCompositor{},
	}
}
