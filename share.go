package sharecrypt

import (
	"encoding/base64"
	"strings"
	"time"
)

// ItemType discriminates manifest nodes.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// EncryptedBlob is an opaque AEAD ciphertext with its nonce.
type EncryptedBlob struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

// Share is a link-sharing record as delivered by the server. It references
// exactly one file or one folder; the single-file fields and the folder
// fields are mutually exclusive, matching IsFolder. The core treats the
// record as read-only; disable/expiry transitions and view counting happen
// server-side.
type Share struct {
	ID       string `json:"id"`
	IsFolder bool   `json:"is_folder"`
	FileID   string `json:"file_id,omitempty"`
	FolderID string `json:"folder_id,omitempty"`

	Disabled  bool       `json:"disabled"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Views     int        `json:"views"`
	ViewLimit int        `json:"view_limit,omitempty"` // 0 means unlimited

	// SaltPW encodes "saltHex:base64(iv||ciphertext)" for password-protected
	// shares; empty otherwise.
	SaltPW string `json:"salt_pw,omitempty"`

	// Single-file shares carry the wrapped file key on the record itself.
	WrappedCEK []byte `json:"wrapped_cek,omitempty"`
	NonceWrap  []byte `json:"nonce_wrap,omitempty"`

	// Root name, sealed under the share key.
	EncryptedName []byte `json:"encrypted_name,omitempty"`
	NameNonce     []byte `json:"name_nonce,omitempty"`

	// Pre-unified-manifest shares sealed the root name under the account
	// master key instead.
	MKEncryptedName []byte `json:"mk_encrypted_name,omitempty"`
	MKNameNonce     []byte `json:"mk_name_nonce,omitempty"`

	// Folder shares: the whole item tree sealed as one AEAD blob.
	EncryptedManifest *EncryptedBlob `json:"encrypted_manifest,omitempty"`

	// Legacy folder shares: structural fields in the clear, names encrypted
	// per item. Populated by the transport layer.
	Items []ManifestItem `json:"items,omitempty"`

	// Post-quantum encapsulation blob; an alternative unlock channel handled
	// entirely outside this core. Presence is treated as an opaque flag.
	PQEncapsulation []byte `json:"pq_encapsulation,omitempty"`
}

// HasPassword reports whether the share key must be recovered via the
// password channel rather than the link fragment.
func (s *Share) HasPassword() bool {
	return s.SaltPW != ""
}

// RootID returns the id of the shared file or folder.
func (s *Share) RootID() string {
	if s.IsFolder {
		return s.FolderID
	}
	return s.FileID
}

// ManifestItem is one node of a shared folder's tree. For files it carries
// its own file key wrapped under this share's key.
type ManifestItem struct {
	ID       string   `json:"id"`
	Type     ItemType `json:"type"`
	Size     int64    `json:"size,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`

	// Name is plaintext, or a two-part encrypted blob when NameSalt is set
	// (see ClassifyName).
	Name     string `json:"name"`
	NameSalt string `json:"name_salt,omitempty"`

	WrappedCEK []byte `json:"wrapped_cek,omitempty"`
	NonceWrap  []byte `json:"nonce_wrap,omitempty"`
}

// Node is a decrypted manifest item linked into its tree.
type Node struct {
	ManifestItem
	Children []*Node
}

// NameField is the classified form of an item name: either plaintext that
// predates name encryption, or a nonce/ciphertext pair to open under a
// per-item derived key.
type NameField struct {
	Encrypted  bool
	Plaintext  string
	Nonce      []byte
	Ciphertext []byte
}

// minEncryptedNameLen rejects short strings that merely contain a colon.
// A real encrypted name is base64(12-byte nonce) ":" base64(>=16-byte tag).
const minEncryptedNameLen = 38

// ClassifyName decides once whether a stored name is ciphertext or legacy
// plaintext. The encrypted form is "base64(nonce):base64(ciphertext)"; both
// parts must decode and the nonce part must be exactly NonceSize bytes.
// Anything else is treated as plaintext from the pre-encryption era.
func ClassifyName(value string) NameField {
	if len(value) < minEncryptedNameLen {
		return NameField{Plaintext: value}
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return NameField{Plaintext: value}
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return NameField{Plaintext: value}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 {
		return NameField{Plaintext: value}
	}
	return NameField{Encrypted: true, Nonce: nonce, Ciphertext: ciphertext}
}

// EncodeEncryptedName renders a sealed name into the two-part wire form
// understood by ClassifyName.
func EncodeEncryptedName(ciphertext, nonce []byte) string {
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(ciphertext)
}
