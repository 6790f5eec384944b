package sharecrypt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
)

// itemNameInfo is the HKDF info string for per-item name keys.
const itemNameInfo = "sharecrypt.item-name.v1"

// Placeholder root names used when every resolution step fails.
const (
	placeholderFileName   = "(File)"
	placeholderFolderName = "Shared Folder"
)

// ShareTree is the decrypted view of a share: its resolved root name and,
// for folder shares, the full item tree.
type ShareTree struct {
	RootID   string
	RootName string
	Root     *Node
	Items    []ManifestItem
}

// ManifestDecryptor recovers the plaintext item tree from a share's
// manifest. masterKey is optional and only consulted for the legacy
// master-key-encrypted root name.
type ManifestDecryptor struct {
	envelope  Envelope
	masterKey []byte
}

// NewManifestDecryptor builds a decryptor. masterKey may be nil.
func NewManifestDecryptor(masterKey []byte) *ManifestDecryptor {
	return &ManifestDecryptor{masterKey: masterKey}
}

// Decrypt produces the share's tree under the resolved share key. Folder
// shares are decoded from the unified manifest envelope when present,
// otherwise from the legacy per-item scheme. A failing unified envelope is
// ErrCorruptManifest; it never falls back to the legacy path, so tampering
// cannot be masked by a downgrade.
func (d *ManifestDecryptor) Decrypt(share *Share, shareCEK []byte) (*ShareTree, error) {
	var (
		items []ManifestItem
		err   error
	)
	switch {
	case share.EncryptedManifest != nil:
		items, err = d.decryptUnified(share.EncryptedManifest, shareCEK)
		if err != nil {
			return nil, err
		}
	case share.IsFolder:
		items = d.decryptLegacyItems(share.Items, shareCEK)
	}

	tree := &ShareTree{
		RootID: share.RootID(),
		Items:  items,
	}
	tree.RootName = d.resolveRootName(share, shareCEK, items)
	if share.IsFolder {
		tree.Root = buildTree(tree.RootID, tree.RootName, items)
	} else {
		tree.Root = &Node{ManifestItem: ManifestItem{
			ID:   share.FileID,
			Type: ItemFile,
			Name: tree.RootName,
		}}
	}
	return tree, nil
}

// decryptUnified opens the single AEAD blob holding the whole tree, then
// applies the second name layer to items that carry their own name salt.
func (d *ManifestDecryptor) decryptUnified(blob *EncryptedBlob, shareCEK []byte) ([]ManifestItem, error) {
	if len(blob.Ciphertext) == 0 || len(blob.Nonce) == 0 {
		return nil, fmt.Errorf("manifest envelope is empty: %w", ErrCorruptManifest)
	}
	plaintext, err := d.envelope.Open(blob.Ciphertext, shareCEK, blob.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest envelope: %w", ErrCorruptManifest)
	}
	var items []ManifestItem
	if err := json.Unmarshal(plaintext, &items); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", ErrCorruptManifest)
	}

	for i := range items {
		items[i].Name = d.decryptItemName(items[i], shareCEK)
	}
	return items, nil
}

// decryptLegacyItems handles folder shares that predate the unified
// envelope: structure arrives in the clear, names individually encrypted.
// Failures keep the raw name so pre-encryption-era shares stay readable.
func (d *ManifestDecryptor) decryptLegacyItems(items []ManifestItem, shareCEK []byte) []ManifestItem {
	out := make([]ManifestItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].Name = d.decryptItemName(out[i], shareCEK)
	}
	return out
}

// decryptItemName resolves one item's display name. A failed decrypt is
// logged and falls back to the best available stand-in; a single bad name
// never aborts the manifest.
func (d *ManifestDecryptor) decryptItemName(item ManifestItem, shareCEK []byte) string {
	field := ClassifyName(item.Name)
	if !field.Encrypted || item.NameSalt == "" {
		return item.Name
	}

	key, err := deriveItemNameKey(shareCEK, item.NameSalt)
	if err != nil {
		log.Warnf("Failed to derive name key for item %s: %v", item.ID, err)
		return nameFallback(item)
	}
	plaintext, err := d.envelope.Open(field.Ciphertext, key, field.Nonce)
	if err != nil {
		log.Warnf("Failed to decrypt name for item %s: %v", item.ID, err)
		return nameFallback(item)
	}
	return string(plaintext)
}

func nameFallback(item ManifestItem) string {
	if item.Name != "" {
		return item.Name
	}
	if item.ID != "" {
		return item.ID
	}
	if item.Type == ItemFolder {
		return placeholderFolderName
	}
	return placeholderFileName
}

// deriveItemNameKey derives the AEAD key for one item's name from the share
// key and the item's hex-encoded salt.
func deriveItemNameKey(shareCEK []byte, saltHex string) ([]byte, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("invalid name salt")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shareCEK, salt, []byte(itemNameInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive name key: %w", err)
	}
	return key, nil
}

// nameAttempt is one step of the root-name fallback chain.
type nameAttempt struct {
	source string
	run    func() (string, error)
}

// resolveRootName walks the fixed fallback chain for the share's own name:
// sealed name under the share key, then the manifest entry for the root id,
// then the legacy master-key-sealed name, then a generic placeholder. Step
// failures are logged, never surfaced.
func (d *ManifestDecryptor) resolveRootName(share *Share, shareCEK []byte, items []ManifestItem) string {
	attempts := []nameAttempt{
		{
			source: "share key sealed name",
			run: func() (string, error) {
				if len(share.EncryptedName) == 0 || len(share.NameNonce) == 0 {
					return "", fmt.Errorf("not present")
				}
				name, err := d.envelope.Open(share.EncryptedName, shareCEK, share.NameNonce)
				if err != nil {
					return "", err
				}
				return string(name), nil
			},
		},
		{
			source: "manifest root entry",
			run: func() (string, error) {
				for _, item := range items {
					if item.ID == share.RootID() && item.Name != "" {
						return item.Name, nil
					}
				}
				return "", fmt.Errorf("root id not present in manifest")
			},
		},
		{
			source: "master key sealed name",
			run: func() (string, error) {
				if d.masterKey == nil || len(share.MKEncryptedName) == 0 || len(share.MKNameNonce) == 0 {
					return "", fmt.Errorf("not present")
				}
				name, err := d.envelope.Open(share.MKEncryptedName, d.masterKey, share.MKNameNonce)
				if err != nil {
					return "", err
				}
				return string(name), nil
			},
		},
	}

	for _, attempt := range attempts {
		name, err := attempt.run()
		if err == nil && name != "" {
			return name
		}
		log.Debugf("Root name via %s unavailable for share %s: %v", attempt.source, share.ID, err)
	}

	if share.IsFolder {
		return placeholderFolderName
	}
	return placeholderFileName
}

// buildTree links the flat item list into a tree rooted at rootID. Children
// are sorted by id so the same manifest always yields the same tree. Items
// whose parent is missing from the manifest are attached to the root rather
// than dropped.
func buildTree(rootID, rootName string, items []ManifestItem) *Node {
	root := &Node{ManifestItem: ManifestItem{
		ID:   rootID,
		Type: ItemFolder,
		Name: rootName,
	}}

	nodes := make(map[string]*Node, len(items))
	for _, item := range items {
		if item.ID == rootID {
			root.ManifestItem = item
			if rootName != "" {
				root.Name = rootName
			}
			continue
		}
		nodes[item.ID] = &Node{ManifestItem: item}
	}

	for _, node := range nodes {
		parent, ok := nodes[node.ParentID]
		if !ok || node.ParentID == rootID {
			root.Children = append(root.Children, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortChildren(root)
	return root
}

func sortChildren(node *Node) {
	sort.Slice(node.Children, func(i, j int) bool {
		return node.Children[i].ID < node.Children[j].ID
	})
	for _, child := range node.Children {
		sortChildren(child)
	}
}
