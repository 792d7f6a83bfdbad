package workspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/atelier/internal/storage"
)

// activeCodeKey holds the last workspace code a team opened. It is the only
// workspace-related key that is not namespaced under a code.
const activeCodeKey = storagePrefix + "-active-code"

// ErrLoginRequired signals that no workspace code could be resolved: the
// caller supplied none and no prior code is stored. The caller is expected
// to redirect to an entry point; no stage or conversation work may run.
var ErrLoginRequired = errors.New("login required: no workspace code")

// Resolve determines the effective workspace code. Precedence:
//
//  1. An explicitly supplied, non-empty trimmed code. It is persisted as the
//     new last-active code.
//  2. The previously persisted last-active code, if non-empty after trimming.
//  3. Neither: ErrLoginRequired.
//
// Resolve is idempotent: resolving twice with the same inputs yields the
// same code and the same persisted value.
func Resolve(kv KV, supplied string) (string, error) {
	code := strings.TrimSpace(supplied)
	if code != "" {
		if err := kv.Set(activeCodeKey, code); err != nil {
			return "", fmt.Errorf("persisting active workspace code: %w", err)
		}
		return code, nil
	}

	stored, err := kv.Get(activeCodeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrLoginRequired
	}
	if err != nil {
		return "", fmt.Errorf("reading active workspace code: %w", err)
	}

	code = strings.TrimSpace(stored)
	if code == "" {
		return "", ErrLoginRequired
	}
	return code, nil
}

// LastActiveCode returns the stored last-active workspace code, or "" if
// none is stored. Used by the entry UI to pre-fill the login form.
func LastActiveCode(kv KV) (string, error) {
	stored, err := kv.Get(activeCodeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stored), nil
}
