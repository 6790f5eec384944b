package sharecrypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/lumidrive/sharecrypt/storage"
)

// masterKeyTagLabel is the fixed label for the master-key integrity tag.
const masterKeyTagLabel = "sharecrypt.master-key.integrity.v1"

// MasterKeyManager derives, caches and tears down the account master key.
// Exactly one cache slot is active at a time; the slot lives either in the
// ephemeral store or the durable store depending on the scope chosen at
// login. The master key is never written anywhere else and never leaves the
// client.
type MasterKeyManager struct {
	mu        sync.Mutex
	ephemeral KeyStore
	durable   KeyStore // nil when "keep me signed in" is not configured
	envelope  Envelope
}

// NewMasterKeyManager wires the manager to its session stores. durable may be
// nil; ScopeDurable caching then fails.
func NewMasterKeyManager(ephemeral, durable KeyStore) *MasterKeyManager {
	return &MasterKeyManager{ephemeral: ephemeral, durable: durable}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, storage.ErrKeyNotFound)
}

// Derive computes the master key from the password and account salt using the
// memory-hard KDF identified by version.
func (m *MasterKeyManager) Derive(password string, accountSalt []byte, version KDFVersion) ([]byte, error) {
	if len(accountSalt) == 0 {
		return nil, fmt.Errorf("account salt is empty: %w", ErrMissingKeyMaterial)
	}
	mk, err := deriveMasterKey(password, accountSalt, version)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}
	return mk, nil
}

// UnlockViaPasswordEnvelope recovers the master key from its password-wrapped
// envelope. This is the preferred login path: the server can rotate the salt
// or KDF parameters without changing the master key itself.
func (m *MasterKeyManager) UnlockViaPasswordEnvelope(password string, accountSalt, encryptedMK, nonce []byte, version KDFVersion) ([]byte, error) {
	if len(encryptedMK) == 0 || len(nonce) == 0 {
		return nil, fmt.Errorf("master key envelope missing: %w", ErrEncryptionDataUnavailable)
	}
	unwrapKey, err := deriveMasterKey(password, accountSalt, version)
	if err != nil {
		return nil, fmt.Errorf("failed to derive unwrap key: %w", err)
	}
	mk, err := m.envelope.Unwrap(encryptedMK, unwrapKey, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock master key envelope: %w", err)
	}
	return mk, nil
}

func (m *MasterKeyManager) storeFor(scope Scope) (KeyStore, error) {
	switch scope {
	case ScopeEphemeral:
		return m.ephemeral, nil
	case ScopeDurable:
		if m.durable == nil {
			return nil, fmt.Errorf("no durable store configured")
		}
		return m.durable, nil
	default:
		return nil, fmt.Errorf("unknown scope %d", scope)
	}
}

// Cache stores the master key in the single slot for the chosen scope. The
// slot in the other scope is cleared so at most one copy exists per session.
func (m *MasterKeyManager) Cache(mk []byte, scope Scope) error {
	if len(mk) != KeySize {
		return fmt.Errorf("master key must be %d bytes, got %d: %w", KeySize, len(mk), ErrInvalidKeyLength)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := m.storeFor(scope)
	if err != nil {
		return err
	}
	other := m.ephemeral
	if scope == ScopeEphemeral {
		other = m.durable
	}
	if other != nil {
		if err := other.Remove(slotMasterKey); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to clear previous master key slot: %w", err)
		}
		if err := other.Remove(slotMasterKeyTag); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to clear previous master key tag: %w", err)
		}
	}

	if err := target.Set(slotMasterKey, mk); err != nil {
		return fmt.Errorf("failed to cache master key: %w", err)
	}
	if err := target.Set(slotMasterKeyTag, integrityTag(mk)); err != nil {
		return fmt.Errorf("failed to store master key tag: %w", err)
	}

	log.Debugf("Cached master key with %s scope", scope)
	return nil
}

// Get returns the cached master key, checking the ephemeral slot first and
// the durable slot second (a durable slot survives restarts). Returns
// ErrNotAuthenticated when neither slot is populated.
func (m *MasterKeyManager) Get() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, store := range []KeyStore{m.ephemeral, m.durable} {
		if store == nil {
			continue
		}
		mk, err := store.Get(slotMasterKey)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read master key slot: %w", err)
		}
		if len(mk) != KeySize {
			return nil, fmt.Errorf("cached master key is %d bytes: %w", len(mk), ErrInvalidKeyLength)
		}
		return mk, nil
	}
	return nil, ErrNotAuthenticated
}

// Clear removes the master key from both scopes.
func (m *MasterKeyManager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked()
}

func (m *MasterKeyManager) clearLocked() error {
	for _, store := range []KeyStore{m.ephemeral, m.durable} {
		if store == nil {
			continue
		}
		for _, slot := range []string{slotMasterKey, slotMasterKeyTag} {
			if err := store.Remove(slot); err != nil && !isNotFound(err) {
				return fmt.Errorf("failed to clear %s: %w", slot, err)
			}
		}
	}
	return nil
}

// Verify recomputes the integrity tag over mk and compares it to the tag
// stored alongside the cache slot. A mismatch means silent corruption, which
// is distinct from a wrong password (that fails in UnlockViaPasswordEnvelope
// instead).
func (m *MasterKeyManager) Verify(mk []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, store := range []KeyStore{m.ephemeral, m.durable} {
		if store == nil {
			continue
		}
		tag, err := store.Get(slotMasterKeyTag)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return false, fmt.Errorf("failed to read master key tag: %w", err)
		}
		return hmac.Equal(tag, integrityTag(mk)), nil
	}
	return false, ErrNotAuthenticated
}

// Teardown wipes every cached secret except the device-identity token, which
// is managed externally and survives logout.
func (m *MasterKeyManager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.clearLocked(); err != nil {
		return err
	}
	for _, store := range []KeyStore{m.ephemeral, m.durable} {
		if store == nil {
			continue
		}
		for _, slot := range []string{slotShareCEK, slotKDFVersion, slotUnlockedShare} {
			if err := store.Remove(slot); err != nil && !isNotFound(err) {
				return fmt.Errorf("failed to wipe %s: %w", slot, err)
			}
		}
	}
	log.Debug("Session secrets wiped, device token retained")
	return nil
}

func integrityTag(mk []byte) []byte {
	mac := hmac.New(sha256.New, mk)
	mac.Write([]byte(masterKeyTagLabel))
	return mac.Sum(nil)
}
