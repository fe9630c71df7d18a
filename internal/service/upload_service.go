package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/api/internal/client"
	"github.com/adforge/api/internal/model"
)

// ReferenceUploader defines the interface for reference image uploads
type ReferenceUploader interface {
	UploadReference(ctx context.Context, projectID, filename string, file io.Reader, fileSize int64) (*model.ReferenceUploadResponse, error)
	DeleteReference(ctx context.Context, key string) error
}

// UploadService handles reference image uploads to R2 storage. Uploaded
// references are the identity anchors for consistency scoring.
type UploadService struct {
	r2Client client.StorageClient
}

// NewUploadService creates a new upload service with R2 client
func NewUploadService(r2Client client.StorageClient) *UploadService {
	return &UploadService{
		r2Client: r2Client,
	}
}

// UploadReference uploads a product or brand reference image to R2 storage
func (s *UploadService) UploadReference(ctx context.Context, projectID, filename string, file io.Reader, fileSize int64) (*model.ReferenceUploadResponse, error) {
	referenceID := uuid.New().String()

	key := fmt.Sprintf("references/%s/%s.png", projectID, referenceID)

	// Use mock response if client is not configured
	if s.r2Client == nil {
		return s.uploadMock(referenceID, projectID, fileSize)
	}

	fileURL, err := s.r2Client.Upload(ctx, key, file, "image/png")
	if err != nil {
		return nil, fmt.Errorf("failed to upload reference: %w", err)
	}

	return &model.ReferenceUploadResponse{
		ReferenceID: referenceID,
		FileURL:     fileURL,
		Size:        fileSize,
		UploadedAt:  time.Now(),
	}, nil
}

// DeleteReference deletes a reference image by its full storage key
func (s *UploadService) DeleteReference(ctx context.Context, key string) error {
	if s.r2Client == nil {
		return nil
	}

	return s.r2Client.Delete(ctx, key)
}

// GetSignedURL generates a presigned URL for temporary access to a file
func (s *UploadService) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.r2Client == nil {
		return fmt.Sprintf("https://cdn.adforge.dev/%s", key), nil
	}

	return s.r2Client.GetSignedURL(ctx, key, expiry)
}

// Mock implementation for development/testing
func (s *UploadService) uploadMock(referenceID, projectID string, fileSize int64) (*model.ReferenceUploadResponse, error) {
	return &model.ReferenceUploadResponse{
		ReferenceID: referenceID,
		FileURL:     fmt.Sprintf("https://cdn.adforge.dev/references/%s/%s.png", projectID, referenceID),
		Size:        fileSize,
		UploadedAt:  time.Now(),
	}, nil
}
