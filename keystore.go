package sharecrypt

import "sync"

// Scope selects the lifetime of cached key material. It is chosen once per
// login ("keep me signed in") and applies to the whole session.
type Scope int

const (
	// ScopeEphemeral keeps secrets in memory only; they vanish when the
	// session ends.
	ScopeEphemeral Scope = iota

	// ScopeDurable persists secrets across restarts via the badger-backed
	// store.
	ScopeDurable
)

func (s Scope) String() string {
	switch s {
	case ScopeEphemeral:
		return "ephemeral"
	case ScopeDurable:
		return "durable"
	default:
		return "unknown"
	}
}

// KeyStore is the session key-value storage capability. Implementations are
// the in-memory MemoryStore (ephemeral) and storage.Store (durable). A
// missing entry is reported as ErrKeyNotFound.
type KeyStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Close() error
}

// Fixed storage slots. Cache writes go to exactly one slot per secret; the
// single-slot layout is what enforces "at most one MK / one share CEK per
// session".
const (
	slotMasterKey     = "sess:master_key"
	slotMasterKeyTag  = "sess:master_key_tag"
	slotShareCEK      = "sess:share_cek"
	slotDeviceToken   = "sess:device_token"
	slotKDFVersion    = "sess:kdf_version"
	slotUnlockedShare = "sess:unlocked_share"
)

// MemoryStore is the ephemeral KeyStore: a mutex-guarded map that never
// touches disk.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty ephemeral store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = stored
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[key]; ok {
		zeroBytes(old)
	}
	delete(m.entries, key)
	return nil
}

// Close wipes every entry.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range m.entries {
		zeroBytes(value)
		delete(m.entries, key)
	}
	return nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
