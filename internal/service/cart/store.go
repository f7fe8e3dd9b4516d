package cart

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

// DefaultIdleTTL: время жизни неактивной корзины.
const DefaultIdleTTL = 30 * time.Minute

type entry struct {
	builder  *Builder
	lastSeen time.Time
}

// Store хранит открытые корзины касс по идентификатору.
type Store struct {
	mu      sync.Mutex
	catalog ProductReader
	carts   map[string]*entry
	idleTTL time.Duration
	now     func() time.Time
}

// NewStore создаёт хранилище корзин. idleTTL <= 0 означает DefaultIdleTTL.
func NewStore(catalog ProductReader, idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Store{
		catalog: catalog,
		carts:   make(map[string]*entry),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Create открывает новую пустую корзину.
func (s *Store) Create() (string, *Builder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	id := uuid.NewString()
	builder := NewBuilder(s.catalog)
	s.carts[id] = &entry{builder: builder, lastSeen: s.now()}
	return id, builder
}

// Get возвращает корзину и продлевает её жизнь.
func (s *Store) Get(id string) (*Builder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	e, ok := s.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	e.lastSeen = s.now()
	return e.builder, nil
}

// Delete закрывает корзину.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[id]; !ok {
		return domain.ErrCartNotFound
	}
	delete(s.carts, id)
	return nil
}

// Len возвращает число открытых корзин.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	return len(s.carts)
}

func (s *Store) evictLocked() {
	cutoff := s.now().Add(-s.idleTTL)
	for id, e := range s.carts {
		if e.lastSeen.Before(cutoff) {
			delete(s.carts, id)
		}
	}
}
