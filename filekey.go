package sharecrypt

import (
	"context"
	"fmt"
)

// UnwrapFileKey recovers a file content key wrapped under the share key. A
// missing wrapped-key pair means the share record is malformed
// (ErrEncryptionDataUnavailable); a failing tag means the share key is wrong
// and is surfaced rather than letting a garbage key corrupt file decryption
// later.
func UnwrapFileKey(shareCEK, wrappedCEK, nonce []byte) ([]byte, error) {
	if len(wrappedCEK) == 0 || len(nonce) == 0 {
		return nil, ErrEncryptionDataUnavailable
	}
	var envelope Envelope
	fileCEK, err := envelope.Unwrap(wrappedCEK, shareCEK, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap file key: %w", err)
	}
	return fileCEK, nil
}

// WrapFileKey is the sharer-side counterpart: it wraps a file content key
// under the share key at share-creation time.
func WrapFileKey(fileCEK, shareCEK []byte) (wrappedCEK, nonce []byte, err error) {
	var envelope Envelope
	return envelope.Wrap(fileCEK, shareCEK)
}

// FileKeyForShare unwraps the file key of a single-file share from the
// wrapped pair on the share record itself.
func FileKeyForShare(share *Share, shareCEK []byte) ([]byte, error) {
	if share.IsFolder {
		return nil, fmt.Errorf("folder shares carry file keys per manifest item: %w", ErrEncryptionDataUnavailable)
	}
	return UnwrapFileKey(shareCEK, share.WrappedCEK, share.NonceWrap)
}

// FileKeyForItem unwraps the file key of one manifest item of a folder
// share.
func FileKeyForItem(item ManifestItem, shareCEK []byte) ([]byte, error) {
	if item.Type != ItemFile {
		return nil, fmt.Errorf("item %s is not a file: %w", item.ID, ErrEncryptionDataUnavailable)
	}
	return UnwrapFileKey(shareCEK, item.WrappedCEK, item.NonceWrap)
}

// UnwrapFileKeys unwraps the file keys of several items, e.g. for a batch
// download. Each unwrap is a pure function of independent inputs and runs to
// completion; cancellation is honored between items, never mid-unwrap.
func UnwrapFileKeys(ctx context.Context, items []ManifestItem, shareCEK []byte) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.Type != ItemFile {
			continue
		}
		fileCEK, err := FileKeyForItem(item, shareCEK)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		keys[item.ID] = fileCEK
	}
	return keys, nil
}
