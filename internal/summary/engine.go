package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/atelier/internal/completion"
	"github.com/kalambet/atelier/internal/conversation"
	"github.com/kalambet/atelier/internal/workflow"
	"github.com/kalambet/atelier/internal/workspace"
)

// summarizerPrompt is the persona used for every stage-closing summary call.
const summarizerPrompt = "You are a report automation assistant who condenses design workshop conversations into concise, insight-rich summaries."

// Record is the persisted summary of one completed stage. Overwritten on
// each successful summarization, never appended.
type Record struct {
	Summary    string `json:"summary"`
	StageTitle string `json:"stage_title"`
	Timestamp  string `json:"timestamp"`
}

// Status reports the outcome of a Summarize call.
type Status int

const (
	// StatusSaved means a summary (remote or fallback) was persisted and the
	// stage was marked completed. The two success paths are deliberately
	// indistinguishable here.
	StatusSaved Status = iota
	// StatusNothingToSummarize means the stage has no conversation; nothing
	// was written and the stage was not marked completed.
	StatusNothingToSummarize
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Engine produces stage-closing summaries for one workspace, falling back to
// a deterministic local summary when the completion provider is unreachable.
type Engine struct {
	scope       *workspace.Scope
	conv        *conversation.Manager
	creds       *completion.Credentials
	completer   conversation.Completer
	status      *workflow.StatusStore
	model       string
	temperature float64
	clock       Clock
}

// NewEngine creates an Engine for one workspace scope.
func NewEngine(
	scope *workspace.Scope,
	conv *conversation.Manager,
	creds *completion.Credentials,
	completer conversation.Completer,
	status *workflow.StatusStore,
	model string,
	temperature float64,
) *Engine {
	return &Engine{
		scope:       scope,
		conv:        conv,
		creds:       creds,
		completer:   completer,
		status:      status,
		model:       model,
		temperature: temperature,
		clock:       realClock{},
	}
}

// WithClock replaces the engine's clock (for testing).
func (e *Engine) WithClock(c Clock) *Engine {
	e.clock = c
	return e
}

// Summarize builds a role-tagged transcript of the stage conversation,
// requests a summary from the completion provider, and persists the result.
// A provider failure degrades to a deterministic local summary that is
// persisted exactly like a remote one, including marking the stage
// completed. Re-running overwrites the prior record; a completion flag, once
// set, is never cleared here.
func (e *Engine) Summarize(ctx context.Context, stage workflow.StageID) (Status, Record, error) {
	cfg, ok := workflow.Lookup(stage)
	if !ok {
		return 0, Record{}, fmt.Errorf("unknown stage %q", stage)
	}

	entries, err := e.conv.Load(stage)
	if err != nil {
		return 0, Record{}, err
	}
	if len(entries) == 0 {
		return StatusNothingToSummarize, Record{}, nil
	}

	text, err := e.requestSummary(ctx, cfg, entries)
	if err != nil {
		slog.Debug("remote summarization failed, using local fallback", "stage", stage, "error", err)
		text = fallbackSummary(cfg.Title, entries)
	}

	rec := Record{
		Summary:    text,
		StageTitle: cfg.Title,
		Timestamp:  e.clock.Now().UTC().Format(time.RFC3339),
	}
	if err := e.scope.WriteJSON(e.scope.SummaryKey(string(stage)), rec); err != nil {
		return 0, Record{}, fmt.Errorf("persisting summary for %s: %w", stage, err)
	}
	if err := e.status.MarkCompleted(stage); err != nil {
		return 0, Record{}, err
	}
	return StatusSaved, rec, nil
}

// Load returns the persisted summary record for stage, or false when none
// has been produced yet.
func (e *Engine) Load(stage workflow.StageID) (Record, bool, error) {
	var rec Record
	ok, err := e.scope.ReadJSON(e.scope.SummaryKey(string(stage)), &rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("loading summary for %s: %w", stage, err)
	}
	return rec, ok && rec.Summary != "", nil
}

func (e *Engine) requestSummary(ctx context.Context, cfg workflow.StageConfig, entries []conversation.Entry) (string, error) {
	provider, err := e.creds.ActiveProvider()
	if err != nil {
		return "", err
	}
	apiKey, err := e.creds.APIKey(provider)
	if err != nil {
		return "", err
	}

	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = strings.ToUpper(entry.Role) + ": " + entry.Content
	}
	transcript := strings.Join(lines, "\n")

	msg, err := e.completer.Complete(ctx, completion.Request{
		Provider: provider,
		APIKey:   apiKey,
		Model:    e.model,
		Messages: []completion.Message{
			{Role: conversation.RoleSystem, Content: summarizerPrompt},
			{Role: conversation.RoleUser, Content: cfg.SummaryPrompt + "\n\nDialogue:\n" + transcript},
		},
		Temperature: e.temperature,
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// fallbackSummary is the deterministic local summary: the last up-to-3
// user-authored entries, numbered, under a stage heading. A conversation
// holding only assistant turns yields an explanatory sentence instead.
func fallbackSummary(stageTitle string, entries []conversation.Entry) string {
	var userEntries []conversation.Entry
	for _, e := range entries {
		if e.Role == conversation.RoleUser {
			userEntries = append(userEntries, e)
		}
	}
	if len(userEntries) == 0 {
		return fmt.Sprintf("Dialogue was recorded, but only assistant responses are stored for the %s stage.", stageTitle)
	}
	if len(userEntries) > 3 {
		userEntries = userEntries[len(userEntries)-3:]
	}

	lines := []string{fmt.Sprintf("Highlights from %s:", stageTitle)}
	for i, e := range userEntries {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, e.Content))
	}
	return strings.Join(lines, "\n")
}
