package sharecrypt

import (
	"errors"
	"reflect"
	"testing"
)

// buildTestFolder creates a folder share with a nested structure:
// root/{docs/{a.txt, b.txt}, readme.md}.
func buildTestFolder(t *testing.T, opts ShareOptions) *BuildResult {
	t.Helper()
	entries := []FolderEntry{
		{ID: "docs", Type: ItemFolder, Name: "docs"},
		{ID: "a", Type: ItemFile, Name: "a.txt", Size: 100, ParentID: "docs"},
		{ID: "b", Type: ItemFile, Name: "b.txt", Size: 200, ParentID: "docs"},
		{ID: "readme", Type: ItemFile, Name: "readme.md", Size: 50},
	}
	result, err := BuildFolderShare("project", entries, opts)
	if err != nil {
		t.Fatalf("BuildFolderShare failed: %v", err)
	}
	return result
}

func TestDecryptUnifiedManifest(t *testing.T) {
	result := buildTestFolder(t, ShareOptions{})
	d := NewManifestDecryptor(nil)

	tree, err := d.Decrypt(result.Share, result.ShareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if tree.RootName != "project" {
		t.Errorf("Expected root name project, got %q", tree.RootName)
	}
	if len(tree.Root.Children) != 2 {
		t.Fatalf("Expected 2 root children, got %d", len(tree.Root.Children))
	}

	// Children are sorted by id: docs before readme.
	docs, readme := tree.Root.Children[0], tree.Root.Children[1]
	if docs.ID != "docs" || readme.ID != "readme" {
		t.Fatalf("Unexpected child order: %s, %s", docs.ID, readme.ID)
	}
	if docs.Name != "docs" || readme.Name != "readme.md" {
		t.Errorf("Names not decrypted: %q, %q", docs.Name, readme.Name)
	}
	if len(docs.Children) != 2 {
		t.Fatalf("Expected 2 children under docs, got %d", len(docs.Children))
	}
	if docs.Children[0].Name != "a.txt" || docs.Children[1].Name != "b.txt" {
		t.Errorf("Nested names not decrypted: %q, %q", docs.Children[0].Name, docs.Children[1].Name)
	}

	// Every file key in the manifest unwraps to the key the builder issued.
	for _, item := range tree.Items {
		if item.Type != ItemFile {
			continue
		}
		fileCEK, err := FileKeyForItem(item, result.ShareCEK)
		if err != nil {
			t.Fatalf("FileKeyForItem(%s) failed: %v", item.ID, err)
		}
		if !reflect.DeepEqual(fileCEK, result.FileKeys[item.ID]) {
			t.Errorf("Item %s: unwrapped key differs from issued key", item.ID)
		}
	}
}

// Decrypting the same manifest twice yields an identical tree regardless of
// any map iteration order along the way.
func TestManifestDecryptionIsDeterministic(t *testing.T) {
	result := buildTestFolder(t, ShareOptions{})
	d := NewManifestDecryptor(nil)

	tree1, err := d.Decrypt(result.Share, result.ShareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	tree2, err := d.Decrypt(result.Share, result.ShareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !reflect.DeepEqual(tree1, tree2) {
		t.Error("Two decryptions of the same manifest produced different trees")
	}
}

func TestCorruptManifestIsSurfaced(t *testing.T) {
	result := buildTestFolder(t, ShareOptions{})
	result.Share.EncryptedManifest.Ciphertext[0] ^= 0xff

	d := NewManifestDecryptor(nil)
	if _, err := d.Decrypt(result.Share, result.ShareCEK); !errors.Is(err, ErrCorruptManifest) {
		t.Errorf("Expected ErrCorruptManifest, got %v", err)
	}
}

// A corrupt unified envelope must not silently fall back to legacy items; a
// downgrade would mask tampering.
func TestCorruptManifestDoesNotFallBackToLegacy(t *testing.T) {
	result := buildTestFolder(t, ShareOptions{})
	result.Share.EncryptedManifest.Ciphertext[0] ^= 0xff
	result.Share.Items = []ManifestItem{{ID: "x", Type: ItemFile, Name: "decoy.txt"}}

	d := NewManifestDecryptor(nil)
	if _, err := d.Decrypt(result.Share, result.ShareCEK); !errors.Is(err, ErrCorruptManifest) {
		t.Errorf("Expected ErrCorruptManifest, got %v", err)
	}
}

// One undecryptable name must not abort the manifest; the item keeps its
// ciphertext stand-in and the rest decrypts normally.
func TestPerItemNameFailureIsNonFatal(t *testing.T) {
	shareCEK := mustRandomKey(t)

	goodName, goodSalt, err := EncryptItemName("good.txt", shareCEK)
	if err != nil {
		t.Fatalf("EncryptItemName failed: %v", err)
	}
	badName, _, err := EncryptItemName("bad.txt", shareCEK)
	if err != nil {
		t.Fatalf("EncryptItemName failed: %v", err)
	}

	items := []ManifestItem{
		{ID: "good", Type: ItemFile, Name: goodName, NameSalt: goodSalt},
		// Wrong salt: the derived key will not authenticate.
		{ID: "bad", Type: ItemFile, Name: badName, NameSalt: "00112233445566778899aabbccddeeff"},
	}
	manifest, err := SealManifest(items, shareCEK)
	if err != nil {
		t.Fatalf("SealManifest failed: %v", err)
	}
	share := &Share{ID: "s", IsFolder: true, FolderID: "root", EncryptedManifest: manifest}

	tree, err := NewManifestDecryptor(nil).Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt must not fail on a single bad name: %v", err)
	}
	if len(tree.Items) != 2 {
		t.Fatalf("Expected both items, got %d", len(tree.Items))
	}

	byID := make(map[string]ManifestItem)
	for _, item := range tree.Items {
		byID[item.ID] = item
	}
	if byID["good"].Name != "good.txt" {
		t.Errorf("Good item should decrypt, got %q", byID["good"].Name)
	}
	if byID["bad"].Name != badName {
		t.Errorf("Bad item should keep its ciphertext stand-in, got %q", byID["bad"].Name)
	}
}

func TestLegacyPerItemScheme(t *testing.T) {
	shareCEK := mustRandomKey(t)

	encName, salt, err := EncryptItemName("ledger.csv", shareCEK)
	if err != nil {
		t.Fatalf("EncryptItemName failed: %v", err)
	}
	share := &Share{
		ID:       "legacy",
		IsFolder: true,
		FolderID: "root",
		Items: []ManifestItem{
			{ID: "f1", Type: ItemFile, Name: encName, NameSalt: salt, Size: 10},
			// Pre-encryption-era item: plaintext name, no salt.
			{ID: "f2", Type: ItemFile, Name: "old-notes.txt", Size: 20},
		},
	}

	tree, err := NewManifestDecryptor(nil).Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	byID := make(map[string]ManifestItem)
	for _, item := range tree.Items {
		byID[item.ID] = item
	}
	if byID["f1"].Name != "ledger.csv" {
		t.Errorf("Expected ledger.csv, got %q", byID["f1"].Name)
	}
	if byID["f2"].Name != "old-notes.txt" {
		t.Errorf("Plaintext legacy name must pass through, got %q", byID["f2"].Name)
	}
}

func TestRootNameFallbackChain(t *testing.T) {
	shareCEK := mustRandomKey(t)
	masterKey := mustRandomKey(t)
	var envelope Envelope

	encName, nameNonce, err := envelope.Seal([]byte("from-share-key"), shareCEK)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	mkName, mkNonce, err := envelope.Seal([]byte("from-master-key"), masterKey)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	items := []ManifestItem{{ID: "root", Type: ItemFolder, Name: "from-manifest"}}
	manifest, err := SealManifest(items, shareCEK)
	if err != nil {
		t.Fatalf("SealManifest failed: %v", err)
	}

	share := &Share{
		ID:                "s",
		IsFolder:          true,
		FolderID:          "root",
		EncryptedName:     encName,
		NameNonce:         nameNonce,
		MKEncryptedName:   mkName,
		MKNameNonce:       mkNonce,
		EncryptedManifest: manifest,
	}
	d := NewManifestDecryptor(masterKey)

	// Step (a): sealed name under the share key wins.
	tree, err := d.Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if tree.RootName != "from-share-key" {
		t.Errorf("Expected from-share-key, got %q", tree.RootName)
	}

	// Step (b): without it, the manifest's root entry is used.
	share.EncryptedName, share.NameNonce = nil, nil
	tree, err = d.Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if tree.RootName != "from-manifest" {
		t.Errorf("Expected from-manifest, got %q", tree.RootName)
	}

	// Step (c): without a manifest entry, the master-key name is used.
	emptyManifest, err := SealManifest([]ManifestItem{}, shareCEK)
	if err != nil {
		t.Fatalf("SealManifest failed: %v", err)
	}
	share.EncryptedManifest = emptyManifest
	tree, err = d.Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if tree.RootName != "from-master-key" {
		t.Errorf("Expected from-master-key, got %q", tree.RootName)
	}

	// Step (d): total exhaustion yields the placeholder.
	share.MKEncryptedName, share.MKNameNonce = nil, nil
	tree, err = d.Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if tree.RootName != placeholderFolderName {
		t.Errorf("Expected %q, got %q", placeholderFolderName, tree.RootName)
	}
}

func TestFileShareTree(t *testing.T) {
	fileCEK := mustRandomKey(t)
	result, err := BuildFileShare("budget.xlsx", fileCEK, ShareOptions{})
	if err != nil {
		t.Fatalf("BuildFileShare failed: %v", err)
	}

	tree, err := NewManifestDecryptor(nil).Decrypt(result.Share, result.ShareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if tree.RootName != "budget.xlsx" {
		t.Errorf("Expected budget.xlsx, got %q", tree.RootName)
	}
	if tree.Root == nil || tree.Root.Type != ItemFile {
		t.Fatal("File share should yield a single file node")
	}
	if len(tree.Root.Children) != 0 {
		t.Error("File share node must have no children")
	}
}

// Items whose parent is missing from the manifest attach to the root instead
// of disappearing.
func TestOrphanItemsAttachToRoot(t *testing.T) {
	shareCEK := mustRandomKey(t)
	items := []ManifestItem{
		{ID: "orphan", Type: ItemFile, Name: "stray.txt", ParentID: "missing-folder"},
	}
	manifest, err := SealManifest(items, shareCEK)
	if err != nil {
		t.Fatalf("SealManifest failed: %v", err)
	}
	share := &Share{ID: "s", IsFolder: true, FolderID: "root", EncryptedManifest: manifest}

	tree, err := NewManifestDecryptor(nil).Decrypt(share, shareCEK)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(tree.Root.Children) != 1 || tree.Root.Children[0].ID != "orphan" {
		t.Error("Orphan item should be attached to the root")
	}
}
