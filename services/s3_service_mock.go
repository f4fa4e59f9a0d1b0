package services

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MockS3Service is an in-memory S3Interface for tests
type MockS3Service struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PutErr, when set, is returned by PutObject
	PutErr error
}

// NewMockS3Service creates an empty in-memory bucket
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{objects: make(map[string][]byte)}
}

func (m *MockS3Service) PutObject(_ context.Context, key string, body io.Reader, _ string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = content
	m.mu.Unlock()
	return nil
}

func (m *MockS3Service) GetPresignedURL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("object not found in mock S3: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

func (m *MockS3Service) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Objects returns a copy of the stored objects
func (m *MockS3Service) Objects() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := make(map[string][]byte, len(m.objects))
	for k, v := range m.objects {
		objects[k] = v
	}
	return objects
}

// Exists reports whether key is stored
func (m *MockS3Service) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[key]
	return exists
}
