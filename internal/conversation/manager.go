package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/atelier/internal/completion"
	"github.com/kalambet/atelier/internal/workflow"
	"github.com/kalambet/atelier/internal/workspace"
)

// Entry is one persisted turn of a stage conversation. Entries are
// append-only: once stored they are never mutated or removed, and persisted
// order equals chronological send order.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User-visible texts recorded when the facilitator cannot respond. Both are
// persisted like any other assistant turn so history reflects what the team
// actually saw.
const (
	missingKeyNotice  = "No API key is configured for this workspace. Add a key in Settings to resume chat."
	unreachableNotice = "The platform could not reach the facilitator API. Ensure the backend proxy injects valid credentials and try again."
)

// ErrEmptyMessage is returned when a send carries no content after trimming.
// The operation is a no-op: nothing is persisted and no request goes out.
var ErrEmptyMessage = errors.New("empty message")

// Completer issues one completion exchange. Implemented by completion.Client.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Message, error)
}

// Manager owns the per-stage dialogue of one workspace: loading history,
// appending turns, and orchestrating the exchange with the completion
// provider.
type Manager struct {
	scope       *workspace.Scope
	creds       *completion.Credentials
	completer   Completer
	model       string
	temperature float64
}

// NewManager creates a Manager for one workspace scope.
func NewManager(scope *workspace.Scope, creds *completion.Credentials, completer Completer, model string, temperature float64) *Manager {
	return &Manager{
		scope:       scope,
		creds:       creds,
		completer:   completer,
		model:       model,
		temperature: temperature,
	}
}

// Load returns the persisted conversation for stage, oldest first. A stage
// with no history yields an empty slice.
func (m *Manager) Load(stage workflow.StageID) ([]Entry, error) {
	var entries []Entry
	if _, err := m.scope.ReadJSON(m.scope.ConversationKey(string(stage)), &entries); err != nil {
		return nil, fmt.Errorf("loading conversation for %s: %w", stage, err)
	}
	return entries, nil
}

func (m *Manager) save(stage workflow.StageID, entries []Entry) error {
	if err := m.scope.WriteJSON(m.scope.ConversationKey(string(stage)), entries); err != nil {
		return fmt.Errorf("persisting conversation for %s: %w", stage, err)
	}
	return nil
}

// Send appends the user's message to the stage conversation, requests a
// completion over the full history prefixed by the stage's facilitator
// instruction, and appends the reply. The user entry is persisted before the
// request is built, so the outgoing request always reflects the message that
// triggered it. A failed completion still appends a persisted assistant
// entry explaining the failure — Send only returns an error for invalid
// input or storage problems, never for provider failures.
func (m *Manager) Send(ctx context.Context, stage workflow.StageID, text string) (Entry, error) {
	message := strings.TrimSpace(text)
	if message == "" {
		return Entry{}, ErrEmptyMessage
	}

	cfg, ok := workflow.Lookup(stage)
	if !ok {
		return Entry{}, fmt.Errorf("unknown stage %q", stage)
	}

	entries, err := m.Load(stage)
	if err != nil {
		return Entry{}, err
	}

	entries = append(entries, Entry{Role: RoleUser, Content: message})
	if err := m.save(stage, entries); err != nil {
		return Entry{}, err
	}

	reply := m.requestReply(ctx, cfg, entries)

	entries = append(entries, reply)
	if err := m.save(stage, entries); err != nil {
		return Entry{}, err
	}
	return reply, nil
}

// requestReply performs the completion exchange and maps every failure mode
// onto a user-visible assistant entry.
func (m *Manager) requestReply(ctx context.Context, cfg workflow.StageConfig, history []Entry) Entry {
	provider, err := m.creds.ActiveProvider()
	if err != nil {
		slog.Warn("provider lookup failed", "error", err)
		return Entry{Role: RoleAssistant, Content: unreachableNotice}
	}

	apiKey, err := m.creds.APIKey(provider)
	if err != nil {
		slog.Warn("credential lookup failed", "provider", provider, "error", err)
		return Entry{Role: RoleAssistant, Content: unreachableNotice}
	}

	messages := make([]completion.Message, 0, len(history)+1)
	messages = append(messages, completion.Message{Role: RoleSystem, Content: cfg.FacilitatorPrompt})
	for _, e := range history {
		messages = append(messages, completion.Message{Role: e.Role, Content: e.Content})
	}

	msg, err := m.completer.Complete(ctx, completion.Request{
		Provider:    provider,
		APIKey:      apiKey,
		Model:       m.model,
		Messages:    messages,
		Temperature: m.temperature,
	})
	if err != nil {
		if errors.Is(err, completion.ErrNoCredential) {
			slog.Debug("completion skipped: no credential", "provider", provider)
			return Entry{Role: RoleAssistant, Content: missingKeyNotice}
		}
		slog.Debug("completion failed", "provider", provider, "error", err)
		return Entry{Role: RoleAssistant, Content: unreachableNotice}
	}

	role := msg.Role
	if role == "" {
		role = RoleAssistant
	}
	return Entry{Role: role, Content: msg.Content}
}
