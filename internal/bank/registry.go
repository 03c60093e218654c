package bank

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
)

// Registry is the in-process account index. It hands out the shared
// *domain.Account instances the service mutates under per-account locks;
// external stores only ever see snapshots of these.
type Registry struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*domain.Account
	byNumber map[string]*domain.Account
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[uuid.UUID]*domain.Account),
		byNumber: make(map[string]*domain.Account),
	}
}

func (r *Registry) Register(a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[a.Number]; ok {
		return fmt.Errorf("Register: %s: %w", a.Number, domain.ErrAccountExists)
	}
	r.byID[a.ID] = a
	r.byNumber[a.Number] = a
	return nil
}

func (r *Registry) GetByNumber(number string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("GetByNumber: %s: %w", number, domain.ErrAccountNotFound)
	}
	return a, nil
}

func (r *Registry) GetByID(id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %s: %w", id, domain.ErrAccountNotFound)
	}
	return a, nil
}
