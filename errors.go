package sharecrypt

import "errors"

// Share availability errors are terminal from the client's perspective;
// recovery requires server-side action (re-enable, link regeneration).
var (
	// ErrShareUnavailable is the umbrella for disabled/expired/view-limit shares.
	ErrShareUnavailable = errors.New("share is unavailable")

	// ErrShareDisabled indicates the share was disabled by its owner.
	ErrShareDisabled = errors.New("share has been disabled")

	// ErrShareExpired indicates the share's expiry timestamp has passed.
	ErrShareExpired = errors.New("share has expired")

	// ErrViewLimitReached indicates the share's view counter hit its limit.
	ErrViewLimitReached = errors.New("share view limit reached")
)

// Key resolution errors.
var (
	// ErrMissingKeyMaterial indicates a non-password share was opened without
	// a key fragment.
	ErrMissingKeyMaterial = errors.New("missing key material")

	// ErrIncorrectPassword indicates the share password did not unlock the
	// share key. Authentication failure and malformed envelopes are reported
	// identically so callers cannot distinguish which check failed.
	ErrIncorrectPassword = errors.New("incorrect share password")

	// ErrPasswordRequired indicates the share is password protected and has
	// not been unlocked this session. Recoverable by prompting for the
	// password.
	ErrPasswordRequired = errors.New("share password required")

	// ErrNotAuthenticated indicates no master key is cached for this session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Cryptographic errors.
var (
	// ErrAuthenticationFailed indicates an AEAD tag did not verify.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidKeyLength indicates an unwrapped key is not exactly 32 bytes.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrEncryptionDataUnavailable indicates a share or manifest record is
	// missing its wrapped-key fields.
	ErrEncryptionDataUnavailable = errors.New("encryption data unavailable")

	// ErrCorruptManifest indicates the share's manifest envelope failed to
	// decrypt or decode.
	ErrCorruptManifest = errors.New("corrupt share manifest")
)

// Storage errors.
var (
	// ErrKeyNotFound indicates the requested entry is not present in the
	// session key store.
	ErrKeyNotFound = errors.New("key not found in store")
)
