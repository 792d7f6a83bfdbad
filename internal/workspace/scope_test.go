package workspace

import (
	"testing"

	"github.com/kalambet/atelier/internal/storage"
)

// fakeKV is an in-memory KV for asserting exact key/value round trips.
type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(key, value string) error {
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(key string) error {
	delete(f.data, key)
	return nil
}

func TestScopeKeyDerivation(t *testing.T) {
	s := NewScope(newFakeKV(), "TEAM-42")

	cases := []struct {
		got  string
		want string
	}{
		{s.ConversationKey("problem-definition"), "atelier-workspace-TEAM-42-conversation-problem-definition"},
		{s.SummaryKey("data-analysis"), "atelier-workspace-TEAM-42-summary-data-analysis"},
		{s.StatusKey(), "atelier-workspace-TEAM-42-stage-status"},
		{s.RankingKey(), "atelier-workspace-TEAM-42-evaluation-rankings"},
		{s.APIKeysKey(), "atelier-workspace-TEAM-42-api-keys"},
		{s.ProviderKey(), "atelier-workspace-TEAM-42-api-provider"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("key = %q, want %q", c.got, c.want)
		}
	}
}

func TestScopeKeyEscaping(t *testing.T) {
	s := NewScope(newFakeKV(), "team alpha/1")

	got := s.StatusKey()
	want := "atelier-workspace-team%20alpha%2F1-stage-status"
	if got != want {
		t.Errorf("StatusKey = %q, want %q", got, want)
	}
}

// TestScopeIsolation verifies that data written under one code's namespace is
// never readable under another code's namespace.
func TestScopeIsolation(t *testing.T) {
	kv := newFakeKV()
	s1 := NewScope(kv, "TEAM-A")
	s2 := NewScope(kv, "TEAM-B")

	if err := s1.WriteJSON(s1.StatusKey(), map[string]bool{"problem-definition": true}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var status map[string]bool
	ok, err := s2.ReadJSON(s2.StatusKey(), &status)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ok {
		t.Errorf("TEAM-B read TEAM-A's status map: %v", status)
	}
}

func TestReadJSONMalformedTreatedAsAbsent(t *testing.T) {
	kv := newFakeKV()
	s := NewScope(kv, "TEAM-A")

	kv.data[s.RankingKey()] = "{not json"

	var rankings map[string]string
	ok, err := s.ReadJSON(s.RankingKey(), &rankings)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ok {
		t.Error("malformed stored value reported as present")
	}
	if len(rankings) != 0 {
		t.Errorf("target mutated by malformed value: %v", rankings)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	s := NewScope(newFakeKV(), "TEAM-A")

	want := map[string]string{"prototype-shuttle": "2", "community-lab": "7"}
	if err := s.WriteJSON(s.RankingKey(), want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	got := make(map[string]string)
	ok, err := s.ReadJSON(s.RankingKey(), &got)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if !ok {
		t.Fatal("ReadJSON reported absent after WriteJSON")
	}
	if len(got) != len(want) || got["prototype-shuttle"] != "2" || got["community-lab"] != "7" {
		t.Errorf("round-trip mismatch: got %v, want %v", got, want)
	}
}
