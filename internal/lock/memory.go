package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// janitorInterval is how often expired leases are swept.
const janitorInterval = 30 * time.Second

// MemoryLocker keeps leases in process memory.
// Leases are not shared with other instances or across restarts.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

func (l memoryLease) live(now time.Time) bool {
	return now.Before(l.expiresAt)
}

// NewMemoryLocker creates a MemoryLocker and starts its janitor.
// Call Close to stop the janitor.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		leases: make(map[string]memoryLease),
		stop:   make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *MemoryLocker) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.sweep(now)
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryLocker) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, l := range m.leases {
		if !l.live(now) {
			delete(m.leases, key)
		}
	}
}

// Close stops the janitor.
func (m *MemoryLocker) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// TryAcquire takes key unless a live lease holds it. An expired lease is replaced.
func (m *MemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if current, ok := m.leases[key]; ok && current.live(now) {
		return nil, nil
	}

	token := uuid.NewString()
	m.leases[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return &Lease{Key: key, Token: token}, nil
}

// Release deletes the key only while lease's token still owns it.
func (m *MemoryLocker) Release(ctx context.Context, lease *Lease) (bool, error) {
	if lease == nil {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.leases[lease.Key]
	if !ok || current.token != lease.Token {
		return false, nil
	}
	delete(m.leases, lease.Key)
	return current.live(time.Now()), nil
}

var _ Locker = (*MemoryLocker)(nil)
