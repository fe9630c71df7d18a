package client

import (
	"context"
	"sync"
	"testing"
)

// The mock set is built once per process and shared by every concurrent job,
// so the counters must hand out distinct asset URLs under parallel use.
func TestMockGeneratorsAreSafeForConcurrentJobs(t *testing.T) {
	const workers = 8
	const callsEach = 3

	image := &MockImageGenerator{}
	video := &MockVideoGenerator{}
	speech := &MockSpeechSynthesizer{}

	var mu sync.Mutex
	seen := make(map[string]bool)
	record := func(url string) {
		mu.Lock()
		defer mu.Unlock()
		if seen[url] {
			t.Errorf("duplicate mock asset URL %s", url)
		}
		seen[url] = true
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < callsEach; i++ {
				imgURL, err := image.GenerateImage(ctx, "prompt", nil)
				if err != nil {
					t.Errorf("GenerateImage: %v", err)
					return
				}
				record(imgURL)

				clip, err := video.GenerateClip(ctx, "prompt", nil, 4)
				if err != nil {
					t.Errorf("GenerateClip: %v", err)
					return
				}
				record(clip.URL)

				voiceURL, _, err := speech.Synthesize(ctx, "line", "")
				if err != nil {
					t.Errorf("Synthesize: %v", err)
					return
				}
				record(voiceURL)
			}
		}()
	}
	wg.Wait()

	want := workers * callsEach * 3
	if len(seen) != want {
		t.Errorf("distinct URLs = %d, want %d", len(seen), want)
	}
}
