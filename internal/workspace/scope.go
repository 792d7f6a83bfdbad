package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/kalambet/atelier/internal/storage"
)

const storagePrefix = "atelier"

// KV defines the storage operations the workspace layer needs.
// Implemented by storage.Store.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Scope namespaces all persisted workspace data under a single workspace
// code. Keys are derived purely from (code, component, qualifier) — two
// distinct trimmed codes can never produce the same key because the code
// segment is percent-encoded with url.PathEscape, which is injective.
type Scope struct {
	kv     KV
	code   string
	prefix string
}

// NewScope creates a Scope for the given workspace code. The code must
// already be resolved (non-empty, trimmed); see Resolve.
func NewScope(kv KV, code string) *Scope {
	return &Scope{
		kv:     kv,
		code:   code,
		prefix: fmt.Sprintf("%s-workspace-%s", storagePrefix, url.PathEscape(code)),
	}
}

// Code returns the workspace code this scope is bound to.
func (s *Scope) Code() string { return s.code }

// Key builds a namespaced storage key from the component suffix.
func (s *Scope) Key(suffix string) string {
	return s.prefix + "-" + suffix
}

// ConversationKey returns the storage key for a stage's conversation.
func (s *Scope) ConversationKey(stage string) string {
	return s.Key("conversation-" + stage)
}

// SummaryKey returns the storage key for a stage's summary record.
func (s *Scope) SummaryKey(stage string) string {
	return s.Key("summary-" + stage)
}

// EvidenceKey returns the storage key for a stage's evidence notes.
func (s *Scope) EvidenceKey(stage string) string {
	return s.Key("evidence-" + stage)
}

// StatusKey returns the storage key for the per-stage completion map.
func (s *Scope) StatusKey() string { return s.Key("stage-status") }

// RankingKey returns the storage key for the evaluation ranking map.
func (s *Scope) RankingKey() string { return s.Key("evaluation-rankings") }

// APIKeysKey returns the storage key for the provider credential map.
func (s *Scope) APIKeysKey() string { return s.Key("api-keys") }

// ProviderKey returns the storage key for the active provider name.
func (s *Scope) ProviderKey() string { return s.Key("api-provider") }

// ReadJSON unmarshals the value stored under key into target. A missing key
// leaves target untouched and returns false. Malformed stored data is treated
// as absent: a diagnostic is logged and false is returned, never an error the
// caller has to branch on.
func (s *Scope) ReadJSON(key string, target any) (bool, error) {
	raw, err := s.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		slog.Warn("unable to parse stored value, treating as absent", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// WriteJSON marshals value and stores it under key.
func (s *Scope) WriteJSON(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling value for key %q: %w", key, err)
	}
	return s.kv.Set(key, string(b))
}

// ReadString returns the raw string stored under key, or "" when absent.
func (s *Scope) ReadString(key string) (string, error) {
	raw, err := s.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

// WriteString stores a raw string under key.
func (s *Scope) WriteString(key, value string) error {
	return s.kv.Set(key, value)
}
