package services

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/utils"
)

// ImageService stores validated photos and hands out URLs for them
type ImageService interface {
	// UploadImage validates and stores an image under prefix, returning its key
	UploadImage(ctx context.Context, prefix string, fileHeader *multipart.FileHeader) (string, error)

	// GetImageURL returns a URL for a stored image; an empty key yields ""
	GetImageURL(ctx context.Context, key string) (string, error)

	// DeleteImage removes a stored image
	DeleteImage(ctx context.Context, key string) error
}

// S3ImageService implements ImageService on top of an S3 bucket
type S3ImageService struct {
	store S3Interface
}

// NewS3ImageService wraps an object store
func NewS3ImageService(store S3Interface) *S3ImageService {
	return &S3ImageService{store: store}
}

// UploadImage validates the file and uploads it as <prefix>/<uuid>.png
func (s *S3ImageService) UploadImage(ctx context.Context, prefix string, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.L().Warn("failed to close uploaded file", "error", closeErr)
		}
	}()

	key := imageKey(prefix)
	if err := s.store.PutObject(ctx, key, file, utils.ImageContentType); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, nil
}

// GetImageURL generates a presigned URL for key
func (s *S3ImageService) GetImageURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	url, err := s.store.GetPresignedURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to generate image URL: %w", err)
	}
	return url, nil
}

// DeleteImage deletes key from the bucket
func (s *S3ImageService) DeleteImage(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	if err := s.store.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func imageKey(prefix string) string {
	return fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), utils.AllowedImageFormat)
}
