package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/atelier/internal/completion"
	"github.com/kalambet/atelier/internal/config"
	"github.com/kalambet/atelier/internal/storage"
)

// mockCompleter returns a scripted reply and records each request.
type mockCompleter struct {
	reply completion.Message
	err   error
	calls int
}

func (m *mockCompleter) Complete(_ context.Context, _ completion.Request) (completion.Message, error) {
	m.calls++
	if m.err != nil {
		return completion.Message{}, m.err
	}
	return m.reply, nil
}

func testService(t *testing.T, mc *mockCompleter) *Service {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, mc, config.CompletionConfig{
		DefaultProvider: "chatgpt",
		ChatModel:       "gpt-4o",
		SummaryModel:    "gpt-4o-mini",
		Temperature:     0.4,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func setKey(t *testing.T, h http.Handler, code string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPut, "/v1/workspace/"+code+"/keys/chatgpt", map[string]string{"key": "sk-test"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("setting key: status %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestResolveWorkspace(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/resolve", map[string]string{"code": "TEAM-42"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeInto(t, rec, &resp)
	if resp["code"] != "TEAM-42" {
		t.Errorf("code = %q", resp["code"])
	}

	// Blank code now falls back to the stored one.
	rec = doJSON(t, h, http.MethodPost, "/v1/workspace/resolve", map[string]string{"code": ""})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeInto(t, rec, &resp)
	if resp["code"] != "TEAM-42" {
		t.Errorf("fallback code = %q", resp["code"])
	}
}

func TestResolveWorkspaceLoginRequired(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/resolve", map[string]string{"code": "   "})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "login_required") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStagesListing(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Stages []stageView `json:"stages"`
		Active string      `json:"active"`
		Pct    int         `json:"progress_percent"`
		Label  string      `json:"progress_label"`
	}
	decodeInto(t, rec, &resp)

	if len(resp.Stages) != 5 {
		t.Fatalf("got %d stages, want 5", len(resp.Stages))
	}
	if resp.Active != "problem-definition" {
		t.Errorf("active = %q", resp.Active)
	}
	if resp.Pct != 0 || resp.Label != "Stage 1 of 5" {
		t.Errorf("progress = %d %q", resp.Pct, resp.Label)
	}
	if !resp.Stages[0].Active || resp.Stages[1].Active {
		t.Error("active flag not on first stage only")
	}
}

func TestSelectStage(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/active", map[string]string{"stage": "design-evaluation"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages", nil)
	var resp struct {
		Active string `json:"active"`
		Pct    int    `json:"progress_percent"`
	}
	decodeInto(t, rec, &resp)
	if resp.Active != "design-evaluation" {
		t.Errorf("active = %q", resp.Active)
	}
	if resp.Pct != 75 {
		t.Errorf("progress = %d, want 75", resp.Pct)
	}
}

func TestSelectStageUnknown(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/active", map[string]string{"stage": "retrospective"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestActiveStageIsolatedPerWorkspace(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	doJSON(t, h, http.MethodPost, "/v1/workspace/ALPHA/stages/active", map[string]string{"stage": "design-decision"})

	rec := doJSON(t, h, http.MethodGet, "/v1/workspace/BETA/stages", nil)
	var resp struct {
		Active string `json:"active"`
	}
	decodeInto(t, rec, &resp)
	if resp.Active != "problem-definition" {
		t.Errorf("workspace BETA active = %q, want the default", resp.Active)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	mc := &mockCompleter{reply: completion.Message{Role: "assistant", Content: "What outcome matters most?"}}
	h := NewHandler(testService(t, mc))
	setKey(t, h, "TEAM-42")

	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/problem-definition/conversation",
		map[string]string{"message": "We want greener commutes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var reply struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	decodeInto(t, rec, &reply)
	if reply.Role != "assistant" || reply.Content != "What outcome matters most?" {
		t.Errorf("reply = %+v", reply)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages/problem-definition/conversation", nil)
	var entries []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	decodeInto(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestConversationEmptyMessage(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/problem-definition/conversation",
		map[string]string{"message": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConversationUnknownStage(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages/retrospective/conversation", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSummarizeFlow(t *testing.T) {
	mc := &mockCompleter{reply: completion.Message{Role: "assistant", Content: "Ack."}}
	h := NewHandler(testService(t, mc))
	setKey(t, h, "TEAM-42")

	// Summary before any conversation is rejected.
	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/problem-definition/summarize", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/problem-definition/conversation",
		map[string]string{"message": "Cut commute emissions in half"})

	mc.reply = completion.Message{Role: "assistant", Content: "The team committed to halving emissions."}
	rec = doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/problem-definition/summarize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		Summary    string `json:"summary"`
		StageTitle string `json:"stage_title"`
	}
	decodeInto(t, rec, &saved)
	if saved.Summary != "The team committed to halving emissions." || saved.StageTitle != "Problem Definition" {
		t.Errorf("record = %+v", saved)
	}

	// Listing now reports completion and summary presence.
	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages", nil)
	var resp struct {
		Stages []stageView `json:"stages"`
	}
	decodeInto(t, rec, &resp)
	if !resp.Stages[0].Completed || !resp.Stages[0].HasSummary {
		t.Errorf("first stage = %+v, want completed with summary", resp.Stages[0])
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages/problem-definition/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary fetch status = %d", rec.Code)
	}
}

func TestSummaryMissing(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages/problem-definition/summary", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRankingFlow(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodPut, "/v1/workspace/TEAM-42/rankings/prototype-shuttle", map[string]string{"value": "2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var pref struct {
		Label string `json:"label"`
		Width int    `json:"width_percent"`
	}
	decodeInto(t, rec, &pref)
	if pref.Label != "Preferred direction · 86% affinity" || pref.Width != 86 {
		t.Errorf("preference = %+v", pref)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/rankings", nil)
	var ranks map[string]string
	decodeInto(t, rec, &ranks)
	if ranks["prototype-shuttle"] != "2" {
		t.Errorf("ranks = %v", ranks)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/decision-table", nil)
	var rows []struct {
		Artifact struct {
			ID string `json:"id"`
		} `json:"artifact"`
		Preference struct {
			RankText string `json:"rank_text"`
		} `json:"preference"`
	}
	decodeInto(t, rec, &rows)
	if len(rows) != 7 {
		t.Fatalf("decision table has %d rows, want 7", len(rows))
	}
}

func TestRankingUnknownArtifact(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodPut, "/v1/workspace/TEAM-42/rankings/mystery", map[string]string{"value": "1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRankingIsolatedPerWorkspace(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	doJSON(t, h, http.MethodPut, "/v1/workspace/ALPHA/rankings/community-lab", map[string]string{"value": "1"})

	rec := doJSON(t, h, http.MethodGet, "/v1/workspace/BETA/rankings", nil)
	var ranks map[string]string
	decodeInto(t, rec, &ranks)
	if len(ranks) != 0 {
		t.Errorf("workspace BETA sees ranks %v", ranks)
	}
}

func TestProviderSettings(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/provider", nil)
	var resp struct {
		Provider string `json:"provider"`
		HasKey   bool   `json:"has_key"`
	}
	decodeInto(t, rec, &resp)
	if resp.Provider != "chatgpt" || resp.HasKey {
		t.Errorf("defaults = %+v", resp)
	}

	doJSON(t, h, http.MethodPut, "/v1/workspace/TEAM-42/provider", map[string]string{"provider": "claude"})
	doJSON(t, h, http.MethodPut, "/v1/workspace/TEAM-42/keys/claude", map[string]string{"key": "sk-other"})

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/provider", nil)
	decodeInto(t, rec, &resp)
	if resp.Provider != "claude" || !resp.HasKey {
		t.Errorf("after update = %+v", resp)
	}
}

func TestEvidenceTextNote(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))

	rec := doJSON(t, h, http.MethodPost, "/v1/workspace/TEAM-42/stages/data-analysis/evidence",
		map[string]string{"caption": "Survey", "content": "72% want better transfers"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/workspace/TEAM-42/stages/data-analysis/evidence", nil)
	var notes []struct {
		Kind    string `json:"kind"`
		Content string `json:"content"`
	}
	decodeInto(t, rec, &notes)
	if len(notes) != 1 || notes[0].Kind != "text" {
		t.Errorf("notes = %+v", notes)
	}
}

func TestArtifactCatalog(t *testing.T) {
	h := NewHandler(testService(t, &mockCompleter{}))
	rec := doJSON(t, h, http.MethodGet, "/v1/artifacts", nil)
	var artifacts []struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &artifacts)
	if len(artifacts) != 7 {
		t.Fatalf("got %d artifacts, want 7", len(artifacts))
	}
}

func TestBearerAuth(t *testing.T) {
	h := BearerAuth("secret-token")(NewHandler(testService(t, &mockCompleter{})))

	req := httptest.NewRequest(http.MethodGet, "/v1/artifacts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/artifacts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/artifacts", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status = %d, want 200", rec.Code)
	}
}
