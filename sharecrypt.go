// Package sharecrypt implements the client-side key-resolution and
// envelope-encryption core of an end-to-end-encrypted file store's link
// sharing: recovering the per-share secret from a link fragment or password,
// unwrapping per-file content keys, and decrypting folder manifests. The
// server never sees plaintext keys, contents or names.
package sharecrypt

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lumidrive/sharecrypt/pkg/diskinfo"
	"github.com/lumidrive/sharecrypt/storage"
)

var log = logrus.New()

// Vault is a client session: it owns the session key stores and the
// components that consume them.
type Vault struct {
	config    Config
	ephemeral *MemoryStore
	durable   *storage.Store

	masterKeys *MasterKeyManager
	resolver   *ShareCEKResolver
}

// Init validates the config, opens the durable store when one is configured
// and wires the session components.
func Init(config *Config) (*Vault, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for Vault: %w", err)
	}

	v := &Vault{
		config:    *config,
		ephemeral: NewMemoryStore(),
	}

	if len(config.Paths) > 0 {
		if err := diskinfo.CheckFreeSpace(config.Paths, config.MinimumFreeSpace, config.Logger); err != nil {
			return nil, err
		}
		store, err := storage.Open(config.Paths[0])
		if err != nil {
			return nil, err
		}
		v.durable = store
	}

	var durable KeyStore
	if v.durable != nil {
		durable = v.durable
	}
	v.masterKeys = NewMasterKeyManager(v.ephemeral, durable)
	v.resolver = NewShareCEKResolver(v.ephemeral)

	return v, nil
}

// Close wipes the ephemeral store and closes the durable one.
func (v *Vault) Close() error {
	if err := v.ephemeral.Close(); err != nil {
		return err
	}
	if v.durable != nil {
		return v.durable.Close()
	}
	return nil
}

// MasterKeys exposes the master-key manager of this session.
func (v *Vault) MasterKeys() *MasterKeyManager {
	return v.masterKeys
}

// Resolver exposes the share-key resolver of this session.
func (v *Vault) Resolver() *ShareCEKResolver {
	return v.resolver
}

// SetDeviceToken stores the externally managed device-identity token. It is
// the one secret Teardown keeps.
func (v *Vault) SetDeviceToken(token []byte) error {
	store := KeyStore(v.ephemeral)
	if v.durable != nil {
		store = v.durable
	}
	return store.Set(slotDeviceToken, token)
}

// DeviceToken returns the stored device-identity token, if any.
func (v *Vault) DeviceToken() ([]byte, error) {
	for _, store := range []KeyStore{v.ephemeral, keyStoreOrNil(v.durable)} {
		if store == nil {
			continue
		}
		token, err := store.Get(slotDeviceToken)
		if err == nil {
			return token, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrKeyNotFound
}

func keyStoreOrNil(s *storage.Store) KeyStore {
	if s == nil {
		return nil
	}
	return s
}

// Credentials is what the viewer brings to a share: the URL fragment for
// link shares, or the password for password shares.
type Credentials struct {
	Fragment string
	Password string
}

// ShareView is the outcome of opening a share.
type ShareView struct {
	State    GateState
	ShareCEK []byte
	Tree     *ShareTree
}

// OpenShare runs the full viewing flow: gate evaluation, share-key
// resolution and manifest decryption. Opening never touches the server-side
// view counter; tracking a download is a separate, explicit caller action.
func (v *Vault) OpenShare(share *Share, creds Credentials) (*ShareView, error) {
	gate := NewShareGate(share)

	if state := gate.State(); state == StatePasswordRequired && creds.Password == "" {
		return &ShareView{State: state}, ErrPasswordRequired
	}
	if err := gate.Admit(); err != nil && gate.State() != StatePasswordRequired {
		return &ShareView{State: gate.State()}, err
	}

	cek, err := v.resolver.Resolve(share, creds)
	if err != nil {
		return &ShareView{State: gate.State()}, err
	}
	gate.MarkUnlocked()

	var mk []byte
	if cached, err := v.masterKeys.Get(); err == nil {
		mk = cached
	}
	tree, err := NewManifestDecryptor(mk).Decrypt(share, cek)
	if err != nil {
		return &ShareView{State: StateUnlocked, ShareCEK: cek}, err
	}

	log.Debugf("Opened share %s (%s)", share.ID, tree.RootName)
	return &ShareView{State: StateUnlocked, ShareCEK: cek, Tree: tree}, nil
}
