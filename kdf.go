package sharecrypt

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KDFVersion selects the password-to-key derivation parameters. The version
// travels with the account record so parameter upgrades never break existing
// users; derivation always honors the stored version, not the current default.
type KDFVersion uint8

const (
	// KDFArgon2idV1 is the initial argon2id parameter set.
	KDFArgon2idV1 KDFVersion = 1

	// CurrentKDFVersion is used for newly created accounts.
	CurrentKDFVersion = KDFArgon2idV1
)

// SharePasswordIterations is the fixed PBKDF2-HMAC-SHA256 iteration count for
// the share-password channel. Changing it invalidates every existing
// password-protected share, so it is a protocol constant, not configuration.
const SharePasswordIterations = 100_000

type argon2idParams struct {
	time    uint32
	memory  uint32 // KiB
	threads uint8
}

var kdfParams = map[KDFVersion]argon2idParams{
	KDFArgon2idV1: {time: 3, memory: 64 * 1024, threads: 4},
}

// deriveMasterKey derives the 32-byte account master key from the password
// and the per-account salt using the memory-hard KDF for the given version.
func deriveMasterKey(password string, accountSalt []byte, version KDFVersion) ([]byte, error) {
	params, ok := kdfParams[version]
	if !ok {
		return nil, fmt.Errorf("unknown KDF version %d", version)
	}
	return argon2.IDKey([]byte(password), accountSalt, params.time, params.memory, params.threads, KeySize), nil
}

// deriveSharePasswordKey derives the AEAD key for the share-password channel:
// PBKDF2-HMAC-SHA256 over the password concatenated with the hex-encoded
// salt, keyed by the raw salt. The concatenation mirrors the envelope builder
// exactly; both sides must agree byte for byte.
func deriveSharePasswordKey(password, saltHex string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password+saltHex), salt, SharePasswordIterations, KeySize, sha256.New)
}
