package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"offerkiosk/storage"
)

// Manager layers a write journal over a storage.Database. Writes stay pending
// until Commit applies them in one atomic batch; Discard drops them. Reads see
// pending writes first.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.pending[string(hashed)]; ok {
		return value, nil
	}
	if _, ok := m.deleted[string(hashed)]; ok {
		return nil, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) put(hashed, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deleted, string(hashed))
	m.pending[string(hashed)] = value
}

func (m *Manager) del(hashed []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, string(hashed))
	m.deleted[string(hashed)] = struct{}{}
}

// Commit writes every pending change to the database atomically and clears
// the journal.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 && len(m.deleted) == 0 {
		return nil
	}
	batch := m.db.NewBatch()
	for key := range m.deleted {
		batch.Delete([]byte(key))
	}
	for key, value := range m.pending {
		batch.Put([]byte(key), value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.reset()
	return nil
}

// Discard drops all pending changes.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Pending reports the number of journaled writes and deletes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) + len(m.deleted)
}

func (m *Manager) reset() {
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.del(kvKey(key))
	return nil
}

// SeedApplied reports whether the development seed has already been loaded.
func (m *Manager) SeedApplied() (bool, error) {
	return m.KVGet(seedAppliedKey, nil)
}

// MarkSeedApplied records that the development seed was loaded.
func (m *Manager) MarkSeedApplied() error {
	return m.KVPut(seedAppliedKey, uint64(1))
}
