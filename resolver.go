package sharecrypt

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// passwordSaltSize is the salt length for the share-password envelope.
const passwordSaltSize = 16

// ShareCEKResolver recovers the per-share symmetric secret through one of
// two mutually exclusive channels: the URL fragment (zero-knowledge, never
// sent to any server) or the share password. Resolution is idempotent; it
// never mutates the share record, and view tracking is left to an explicit
// caller action after success.
type ShareCEKResolver struct {
	mu       sync.Mutex
	session  KeyStore
	envelope Envelope
}

// NewShareCEKResolver wires the resolver to the ephemeral session store used
// for the single cached share-key slot.
func NewShareCEKResolver(session KeyStore) *ShareCEKResolver {
	return &ShareCEKResolver{session: session}
}

// Resolve recovers the share key using the channel the share demands:
// password shares take creds.Password, all others take creds.Fragment.
func (r *ShareCEKResolver) Resolve(share *Share, creds Credentials) ([]byte, error) {
	var (
		cek []byte
		err error
	)
	if share.HasPassword() {
		cek, err = r.UnlockViaPassword(creds.Password, share.SaltPW)
	} else {
		cek, err = r.ResolveFromFragment(creds.Fragment)
	}
	if err != nil {
		return nil, err
	}
	if err := r.cache(share.ID, cek); err != nil {
		return nil, err
	}
	return cek, nil
}

// ResolveFromFragment decodes the share key carried as base64 in the URL
// fragment. Browsers never transmit the fragment, which is what keeps the
// server blind to the key.
func (r *ShareCEKResolver) ResolveFromFragment(fragment string) ([]byte, error) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return nil, ErrMissingKeyMaterial
	}
	cek, err := decodeBase64Loose(fragment)
	if err != nil {
		return nil, fmt.Errorf("fragment is not valid base64: %w", ErrMissingKeyMaterial)
	}
	if len(cek) != KeySize {
		return nil, fmt.Errorf("fragment decodes to %d bytes: %w", len(cek), ErrInvalidKeyLength)
	}
	return cek, nil
}

// UnlockViaPassword recovers the share key from the password envelope
// "saltHex:base64(iv||ciphertext)". Every failure mode, from a malformed
// envelope to a bad authentication tag to a wrong plaintext length, is
// reported as ErrIncorrectPassword, so no oracle distinguishes them.
func (r *ShareCEKResolver) UnlockViaPassword(password, saltPW string) ([]byte, error) {
	cek, ok := r.openPasswordEnvelope(password, saltPW)
	if !ok {
		return nil, ErrIncorrectPassword
	}
	return cek, nil
}

func (r *ShareCEKResolver) openPasswordEnvelope(password, saltPW string) ([]byte, bool) {
	parts := strings.SplitN(saltPW, ":", 2)
	if len(parts) != 2 {
		return nil, false
	}
	saltHex, payloadB64 := parts[0], parts[1]
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return nil, false
	}
	payload, err := decodeBase64Loose(payloadB64)
	if err != nil || len(payload) <= NonceSize {
		return nil, false
	}

	key := deriveSharePasswordKey(password, saltHex, salt)
	cek, err := r.envelope.Unwrap(payload[NonceSize:], key, payload[:NonceSize])
	if err != nil {
		return nil, false
	}
	return cek, true
}

// BuildPasswordEnvelope is the sharer-side counterpart of UnlockViaPassword:
// it wraps the share key under a password-derived key with a fresh salt and
// renders the "saltHex:base64(iv||ciphertext)" blob stored as salt_pw.
func BuildPasswordEnvelope(password string, shareCEK []byte) (string, error) {
	if len(shareCEK) != KeySize {
		return "", fmt.Errorf("share key must be %d bytes, got %d: %w", KeySize, len(shareCEK), ErrInvalidKeyLength)
	}
	salt := make([]byte, passwordSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	key := deriveSharePasswordKey(password, saltHex, salt)
	var envelope Envelope
	ciphertext, nonce, err := envelope.Wrap(shareCEK, key)
	if err != nil {
		return "", fmt.Errorf("failed to wrap share key: %w", err)
	}
	payload := append(append([]byte(nil), nonce...), ciphertext...)
	return saltHex + ":" + base64.StdEncoding.EncodeToString(payload), nil
}

// FragmentForCEK renders a share key as the URL fragment a recipient pastes
// into the link.
func FragmentForCEK(shareCEK []byte) string {
	return base64.RawURLEncoding.EncodeToString(shareCEK)
}

// cache stores the resolved key in the single session slot together with the
// share id it belongs to. Re-resolving the same share overwrites the slot
// with identical content; resolving another share replaces it.
func (r *ShareCEKResolver) cache(shareID string, cek []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.session.Set(slotShareCEK, cek); err != nil {
		return fmt.Errorf("failed to cache share key: %w", err)
	}
	if err := r.session.Set(slotUnlockedShare, []byte(shareID)); err != nil {
		return fmt.Errorf("failed to record unlocked share: %w", err)
	}
	log.Debugf("Cached share key for share %s", shareID)
	return nil
}

// Cached returns the session's resolved share key if it belongs to shareID.
func (r *ShareCEKResolver) Cached(shareID string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.session.Get(slotUnlockedShare)
	if err != nil || string(owner) != shareID {
		return nil, false
	}
	cek, err := r.session.Get(slotShareCEK)
	if err != nil || len(cek) != KeySize {
		return nil, false
	}
	return cek, true
}

// Forget drops the cached share key, e.g. when the viewer navigates away.
func (r *ShareCEKResolver) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.session.Remove(slotShareCEK)
	_ = r.session.Remove(slotUnlockedShare)
}

// decodeBase64Loose accepts standard and URL-safe alphabets, padded or not.
// Fragments come from links that survive copy-paste and URL encoders, so the
// decoder is deliberately forgiving about the variant.
func decodeBase64Loose(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("invalid base64")
}
