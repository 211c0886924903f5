package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/sellerlink/backend/internal/domain/integration"
)

var _ integration.WebhookArchive = (*MemoryWebhookArchive)(nil)

// MemoryWebhookArchive keeps archived payloads in process.
// Use it for development and tests when no object storage is configured.
type MemoryWebhookArchive struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

// NewMemoryWebhookArchive creates a new MemoryWebhookArchive
func NewMemoryWebhookArchive(prefix string) *MemoryWebhookArchive {
	return &MemoryWebhookArchive{
		prefix:  prefix,
		objects: make(map[string][]byte),
	}
}

// Archive stores a copy of the payload
func (m *MemoryWebhookArchive) Archive(ctx context.Context, event *integration.WebhookEvent) (string, error) {
	if event == nil {
		return "", errors.New("webhook event is required")
	}
	key := ArchiveKey(m.prefix, event)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), event.Payload...)
	return key, nil
}

// Get returns the archived payload stored under key
func (m *MemoryWebhookArchive) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of archived payloads
func (m *MemoryWebhookArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
