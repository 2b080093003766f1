package auth

import (
	"sync"
	"time"
)

// TokenStorage persists the session token between calls of one client.
type TokenStorage interface {
	Token() string
	SetToken(token string, expiresAt time.Time)
	ClearToken()
}

type MemoryStorage struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStorage(token string) *MemoryStorage {
	return &MemoryStorage{token: token}
}

func (m *MemoryStorage) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *MemoryStorage) SetToken(token string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *MemoryStorage) ClearToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
}
