package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/adforge/api/internal/client"
	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/pipeline"
	"github.com/adforge/api/internal/store"
)

const exportExpirySeconds = 24 * 60 * 60

// AssetArchiver defines the interface for ZIP archive creation
type AssetArchiver interface {
	CreateZip(ctx context.Context, req *client.ZipRequest) (*client.ZipResponse, error)
}

// ExportService packages a completed job's generated assets — final video,
// clips, storyboard stills and voiceover tracks — into one downloadable ZIP.
type ExportService struct {
	store      store.JobStore
	compositor AssetArchiver
}

// NewExportService creates a new export service
func NewExportService(st store.JobStore, compositor AssetArchiver) *ExportService {
	return &ExportService{
		store:      st,
		compositor: compositor,
	}
}

// ExportAssets creates a ZIP of all assets produced by a completed job
func (s *ExportService) ExportAssets(ctx context.Context, req *model.ExportAssetsRequest) (*model.ExportAssetsResponse, error) {
	job, err := s.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("job not completed")
	}

	files, err := collectAssetFiles(job)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("job has no exportable assets")
	}

	// Use mock response if compositor is not configured
	if s.compositor == nil {
		return s.exportMock(len(files))
	}

	exportID := uuid.New().String()
	zipReq := &client.ZipRequest{
		Files:     files,
		OutputKey: fmt.Sprintf("exports/%s.zip", exportID),
	}

	resp, err := s.compositor.CreateZip(ctx, zipReq)
	if err != nil {
		return nil, fmt.Errorf("ZIP creation failed: %w", err)
	}

	return &model.ExportAssetsResponse{
		DownloadURL: resp.OutputURL,
		Size:        resp.Size,
		FileCount:   resp.FileCount,
		ExpiresIn:   exportExpirySeconds,
	}, nil
}

// collectAssetFiles flattens all artifact URLs into ZIP entries
func collectAssetFiles(job *model.Job) ([]client.ZipFileEntry, error) {
	files := make([]client.ZipFileEntry, 0)

	if raw, ok := job.Artifacts[pipeline.StepComposition]; ok {
		var final model.FinalVideoArtifact
		if err := json.Unmarshal(raw, &final); err != nil {
			return nil, fmt.Errorf("invalid final video artifact: %w", err)
		}
		if final.VideoURL != "" {
			files = append(files, client.ZipFileEntry{URL: final.VideoURL, Filename: "final.mp4"})
		}
		if final.ThumbnailURL != "" {
			files = append(files, client.ZipFileEntry{URL: final.ThumbnailURL, Filename: "thumbnail.png"})
		}
	}

	if raw, ok := job.Artifacts[pipeline.StepVideoGeneration]; ok {
		var video model.VideoArtifact
		if err := json.Unmarshal(raw, &video); err != nil {
			return nil, fmt.Errorf("invalid video artifact: %w", err)
		}
		for _, clip := range video.Clips {
			if clip.ClipURL != "" {
				files = append(files, client.ZipFileEntry{
					URL:      clip.ClipURL,
					Filename: fmt.Sprintf("clips/scene_%d.mp4", clip.Index+1),
				})
			}
		}
	}

	if raw, ok := job.Artifacts[pipeline.StepStoryboard]; ok {
		var storyboard model.StoryboardArtifact
		if err := json.Unmarshal(raw, &storyboard); err != nil {
			return nil, fmt.Errorf("invalid storyboard artifact: %w", err)
		}
		for _, frame := range storyboard.Frames {
			if frame.ImageURL != "" {
				files = append(files, client.ZipFileEntry{
					URL:      frame.ImageURL,
					Filename: fmt.Sprintf("storyboard/frame_%d.png", frame.Index+1),
				})
			}
		}
	}

	if raw, ok := job.Artifacts[pipeline.StepAudioGeneration]; ok {
		var audio model.AudioArtifact
		if err := json.Unmarshal(raw, &audio); err != nil {
			return nil, fmt.Errorf("invalid audio artifact: %w", err)
		}
		for _, track := range audio.Tracks {
			if track.AudioURL != "" {
				files = append(files, client.ZipFileEntry{
					URL:      track.AudioURL,
					Filename: fmt.Sprintf("voiceover/scene_%d.mp3", track.Index+1),
				})
			}
		}
	}

	return files, nil
}

// Mock implementation for development/testing
func (s *ExportService) exportMock(fileCount int) (*model.ExportAssetsResponse, error) {
	exportID := uuid.New().String()

	return &model.ExportAssetsResponse{
		DownloadURL: fmt.Sprintf("https://cdn.adforge.dev/exports/%s.zip", exportID),
		Size:        52428800, // ~50MB
		FileCount:   fileCount,
		ExpiresIn:   exportExpirySeconds,
	}, nil
}
