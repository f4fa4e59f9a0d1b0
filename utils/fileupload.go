package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/kendall-kelly/field-service-api/apperr"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
	// AllowedImageFormat is PNG
	AllowedImageFormat = ".png"
	// ImageContentType is stored alongside uploaded photos
	ImageContentType = "image/png"
)

// ValidateImageFile checks the size and extension of an uploaded photo.
// Failures are validation errors carrying FILE_TOO_LARGE, INVALID_FILE_FORMAT
// or EMPTY_FILE.
func ValidateImageFile(fileHeader *multipart.FileHeader) error {
	if fileHeader == nil || fileHeader.Size == 0 {
		return apperr.Validation("EMPTY_FILE", "Uploaded file is empty")
	}

	if fileHeader.Size > MaxFileSize {
		return apperr.Validation("FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)))
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != AllowedImageFormat {
		return apperr.Validation("INVALID_FILE_FORMAT",
			fmt.Sprintf("Only %s files are allowed", AllowedImageFormat))
	}

	return nil
}
