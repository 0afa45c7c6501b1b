package middleware

import (
	"sync"
	"time"
)

// MemoryStorage implements fiber.Storage in process memory. Entries
// carry an explicit expiry and a background sweep reclaims them, so
// the table stays bounded instead of growing as ambient module state.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	stop  chan struct{}
	once  sync.Once
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStorage(sweepInterval time.Duration) *MemoryStorage {
	s := &MemoryStorage{
		items: make(map[string]memoryItem),
		stop:  make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

func (s *MemoryStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok || (!item.expiresAt.IsZero() && time.Now().After(item.expiresAt)) {
		return nil, nil
	}
	return item.value, nil
}

func (s *MemoryStorage) Set(key string, val []byte, exp time.Duration) error {
	item := memoryItem{value: val}
	if exp > 0 {
		item.expiresAt = time.Now().Add(exp)
	}

	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Reset() error {
	s.mu.Lock()
	s.items = make(map[string]memoryItem)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStorage) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, item := range s.items {
				if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
					delete(s.items, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
