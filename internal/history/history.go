// Package history keeps a per-account undo/redo record of completed
// transactions. It stores what was applied; reversing balances is the
// caller's job, using the transaction it gets back.
package history

import (
	"sync"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
)

type accountStacks struct {
	mu   sync.Mutex
	undo []*domain.Transaction
	redo []*domain.Transaction
}

// History shards its stacks by account id so operations on different
// accounts never contend; operations on the same account are serialized
// by that account's own mutex.
type History struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*accountStacks
}

func New() *History {
	return &History{accounts: make(map[uuid.UUID]*accountStacks)}
}

func (h *History) stacksFor(accountID uuid.UUID, create bool) *accountStacks {
	h.mu.RLock()
	s, ok := h.accounts[accountID]
	h.mu.RUnlock()
	if ok || !create {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok = h.accounts[accountID]; ok {
		return s
	}
	s = &accountStacks{}
	h.accounts[accountID] = s
	return s
}

// PushUndo records a newly applied transaction. Any redo history for the
// account is invalidated: linear history, no branching.
func (h *History) PushUndo(accountID uuid.UUID, tx *domain.Transaction) {
	s := h.stacksFor(accountID, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, tx)
	s.redo = nil
}

// PopUndo moves the most recent transaction to the redo stack and returns
// it for external reversal. The second return is false when there is
// nothing to undo.
func (h *History) PopUndo(accountID uuid.UUID) (*domain.Transaction, bool) {
	s := h.stacksFor(accountID, false)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undo) == 0 {
		return nil, false
	}
	tx := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, tx)
	return tx, true
}

// PopRedo is the symmetric inverse of PopUndo.
func (h *History) PopRedo(accountID uuid.UUID) (*domain.Transaction, bool) {
	s := h.stacksFor(accountID, false)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return nil, false
	}
	tx := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, tx)
	return tx, true
}

// PeekUndo returns the transaction PopUndo would return, without moving it.
func (h *History) PeekUndo(accountID uuid.UUID) (*domain.Transaction, bool) {
	s := h.stacksFor(accountID, false)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undo) == 0 {
		return nil, false
	}
	return s.undo[len(s.undo)-1], true
}

// PeekRedo returns the transaction PopRedo would return, without moving it.
func (h *History) PeekRedo(accountID uuid.UUID) (*domain.Transaction, bool) {
	s := h.stacksFor(accountID, false)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return nil, false
	}
	return s.redo[len(s.redo)-1], true
}

func (h *History) CanUndo(accountID uuid.UUID) bool {
	return h.UndoDepth(accountID) > 0
}

func (h *History) CanRedo(accountID uuid.UUID) bool {
	return h.RedoDepth(accountID) > 0
}

func (h *History) UndoDepth(accountID uuid.UUID) int {
	s := h.stacksFor(accountID, false)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo)
}

func (h *History) RedoDepth(accountID uuid.UUID) int {
	s := h.stacksFor(accountID, false)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo)
}

// Clear drops both stacks for one account.
func (h *History) Clear(accountID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.accounts, accountID)
}

// ClearAll drops every account's history.
func (h *History) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts = make(map[uuid.UUID]*accountStacks)
}
