package session

import (
	"context"
	"sync"

	"postly/internal/models"
)

// Snapshot is what a Store persists between runs.
type Snapshot struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	Auth         models.AuthState `json:"auth"`
}

// Store persists the session snapshot.
type Store interface {
	// Load returns (false, nil) when nothing has been saved.
	Load(ctx context.Context) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// Broadcaster is implemented by stores shared between client instances. A
// logout in one instance is published to the others.
type Broadcaster interface {
	PublishLogout(ctx context.Context, origin string) error
	SubscribeLogout(ctx context.Context, onLogout func(origin string)) error
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saved bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.saved, nil
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saved = true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{}
	m.saved = false
	return nil
}
