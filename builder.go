package sharecrypt

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShareOptions tune a share at creation time.
type ShareOptions struct {
	// Password protects the share; the share key is then recoverable only
	// through the password envelope, and no fragment is issued.
	Password string

	// ExpiresAt, when set, makes the gate reject the share after this time.
	ExpiresAt *time.Time

	// ViewLimit caps the number of views; 0 means unlimited.
	ViewLimit int
}

// BuildResult is a freshly created share together with the secrets the
// sharer must hand out-of-band: the link fragment (empty for password
// shares) and the plaintext file keys per item id, for the uploader to
// encrypt content with.
type BuildResult struct {
	Share    *Share
	ShareCEK []byte
	Fragment string
	FileKeys map[string][]byte
}

// BuildFileShare creates a single-file share: a fresh share key, the file
// key wrapped under it, and the file name sealed under it.
func BuildFileShare(fileName string, fileCEK []byte, opts ShareOptions) (*BuildResult, error) {
	if len(fileCEK) != KeySize {
		return nil, fmt.Errorf("file key must be %d bytes, got %d: %w", KeySize, len(fileCEK), ErrInvalidKeyLength)
	}
	shareCEK, err := RandomKey()
	if err != nil {
		return nil, err
	}

	wrapped, nonceWrap, err := WrapFileKey(fileCEK, shareCEK)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap file key: %w", err)
	}

	var envelope Envelope
	encName, nameNonce, err := envelope.Seal([]byte(fileName), shareCEK)
	if err != nil {
		return nil, fmt.Errorf("failed to seal file name: %w", err)
	}

	fileID := uuid.NewString()
	share := &Share{
		ID:            uuid.NewString(),
		FileID:        fileID,
		WrappedCEK:    wrapped,
		NonceWrap:     nonceWrap,
		EncryptedName: encName,
		NameNonce:     nameNonce,
		ExpiresAt:     opts.ExpiresAt,
		ViewLimit:     opts.ViewLimit,
	}

	result := &BuildResult{
		Share:    share,
		ShareCEK: shareCEK,
		FileKeys: map[string][]byte{fileID: fileCEK},
	}
	if err := applyPassword(share, shareCEK, opts.Password, result); err != nil {
		return nil, err
	}
	return result, nil
}

// FolderEntry describes one item of a folder share to be built. ParentID
// refers to another entry's ID, or is empty for items directly under the
// shared folder.
type FolderEntry struct {
	ID       string
	Type     ItemType
	Name     string
	Size     int64
	ParentID string
}

// BuildFolderShare creates a folder share with a unified manifest envelope:
// per-file keys are generated and wrapped under a fresh share key, item
// names get their second encryption layer, and the whole tree is sealed as
// one blob.
func BuildFolderShare(folderName string, entries []FolderEntry, opts ShareOptions) (*BuildResult, error) {
	shareCEK, err := RandomKey()
	if err != nil {
		return nil, err
	}

	folderID := uuid.NewString()
	fileKeys := make(map[string][]byte)
	items := make([]ManifestItem, 0, len(entries))

	for _, entry := range entries {
		item := ManifestItem{
			ID:       entry.ID,
			Type:     entry.Type,
			Size:     entry.Size,
			ParentID: entry.ParentID,
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.ParentID == "" {
			item.ParentID = folderID
		}

		item.Name, item.NameSalt, err = EncryptItemName(entry.Name, shareCEK)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt name of %s: %w", item.ID, err)
		}

		if entry.Type == ItemFile {
			fileCEK, err := RandomKey()
			if err != nil {
				return nil, err
			}
			item.WrappedCEK, item.NonceWrap, err = WrapFileKey(fileCEK, shareCEK)
			if err != nil {
				return nil, fmt.Errorf("failed to wrap file key of %s: %w", item.ID, err)
			}
			fileKeys[item.ID] = fileCEK
		}
		items = append(items, item)
	}

	manifest, err := SealManifest(items, shareCEK)
	if err != nil {
		return nil, err
	}

	var envelope Envelope
	encName, nameNonce, err := envelope.Seal([]byte(folderName), shareCEK)
	if err != nil {
		return nil, fmt.Errorf("failed to seal folder name: %w", err)
	}

	share := &Share{
		ID:                uuid.NewString(),
		IsFolder:          true,
		FolderID:          folderID,
		EncryptedName:     encName,
		NameNonce:         nameNonce,
		EncryptedManifest: manifest,
		ExpiresAt:         opts.ExpiresAt,
		ViewLimit:         opts.ViewLimit,
	}

	result := &BuildResult{
		Share:    share,
		ShareCEK: shareCEK,
		FileKeys: fileKeys,
	}
	if err := applyPassword(share, shareCEK, opts.Password, result); err != nil {
		return nil, err
	}
	return result, nil
}

func applyPassword(share *Share, shareCEK []byte, password string, result *BuildResult) error {
	if password == "" {
		result.Fragment = FragmentForCEK(shareCEK)
		return nil
	}
	saltPW, err := BuildPasswordEnvelope(password, shareCEK)
	if err != nil {
		return fmt.Errorf("failed to build password envelope: %w", err)
	}
	share.SaltPW = saltPW
	return nil
}

// SealManifest serializes the item list and seals it as the unified
// manifest envelope.
func SealManifest(items []ManifestItem, shareCEK []byte) (*EncryptedBlob, error) {
	plaintext, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	var envelope Envelope
	ciphertext, nonce, err := envelope.Seal(plaintext, shareCEK)
	if err != nil {
		return nil, fmt.Errorf("failed to seal manifest: %w", err)
	}
	return &EncryptedBlob{Ciphertext: ciphertext, Nonce: nonce}, nil
}

// EncryptItemName seals an item name under a key derived from the share key
// and a fresh per-item salt, returning the two-part wire form and the hex
// salt.
func EncryptItemName(name string, shareCEK []byte) (encoded, saltHex string, err error) {
	salt := make([]byte, passwordSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to generate name salt: %w", err)
	}
	saltHex = hex.EncodeToString(salt)

	key, err := deriveItemNameKey(shareCEK, saltHex)
	if err != nil {
		return "", "", err
	}
	var envelope Envelope
	ciphertext, nonce, err := envelope.Seal([]byte(name), key)
	if err != nil {
		return "", "", fmt.Errorf("failed to seal item name: %w", err)
	}
	return EncodeEncryptedName(ciphertext, nonce), saltHex, nil
}
