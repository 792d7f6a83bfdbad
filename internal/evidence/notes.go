package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/kalambet/atelier/internal/workflow"
	"github.com/kalambet/atelier/internal/workspace"
)

const (
	// KindText marks a note captured directly by a participant.
	KindText = "text"
	// KindLink marks a note whose content was extracted from a fetched page.
	KindLink = "link"

	fetchTimeout = 15 * time.Second

	// maxExtractedRunes bounds how much page text one link note stores.
	maxExtractedRunes = 4000
)

// ErrEmptyContent is returned when a text note has no content after trimming.
var ErrEmptyContent = errors.New("evidence content is empty")

// Note is one piece of supporting material attached to a workflow stage.
type Note struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Caption   string `json:"caption"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store manages evidence notes for one workspace, keyed per stage.
type Store struct {
	scope      *workspace.Scope
	httpClient *http.Client
	clock      Clock
}

// NewStore creates an evidence store over one workspace scope.
func NewStore(scope *workspace.Scope) *Store {
	return &Store{
		scope:      scope,
		httpClient: &http.Client{Timeout: fetchTimeout},
		clock:      realClock{},
	}
}

// WithHTTPClient replaces the fetch client (for testing).
func (s *Store) WithHTTPClient(c *http.Client) *Store {
	s.httpClient = c
	return s
}

// WithClock replaces the store's clock (for testing).
func (s *Store) WithClock(c Clock) *Store {
	s.clock = c
	return s
}

// List returns the stage's notes in insertion order.
func (s *Store) List(stage workflow.StageID) ([]Note, error) {
	if _, ok := workflow.Lookup(stage); !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	var notes []Note
	if _, err := s.scope.ReadJSON(s.scope.EvidenceKey(string(stage)), &notes); err != nil {
		return nil, fmt.Errorf("loading evidence for %s: %w", stage, err)
	}
	return notes, nil
}

// Add appends a text note to the stage.
func (s *Store) Add(stage workflow.StageID, caption, content string) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}
	note := Note{
		ID:        uuid.NewString(),
		Kind:      KindText,
		Caption:   strings.TrimSpace(caption),
		Content:   content,
		CreatedAt: s.clock.Now().UTC().Format(time.RFC3339),
	}
	return note, s.append(stage, note)
}

// AddURL fetches the page at rawURL, extracts its readable text, and
// appends the result as a link note.
func (s *Store) AddURL(ctx context.Context, stage workflow.StageID, caption, rawURL string) (Note, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Note{}, fmt.Errorf("building evidence request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Note{}, fmt.Errorf("fetching evidence page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Note{}, fmt.Errorf("fetching evidence page: unexpected status %d", resp.StatusCode)
	}

	title, text, err := extractReadableText(resp.Body)
	if err != nil {
		return Note{}, fmt.Errorf("parsing evidence page: %w", err)
	}
	if text == "" {
		return Note{}, ErrEmptyContent
	}

	if caption = strings.TrimSpace(caption); caption == "" {
		caption = title
	}
	note := Note{
		ID:        uuid.NewString(),
		Kind:      KindLink,
		Caption:   caption,
		Content:   text,
		SourceURL: rawURL,
		CreatedAt: s.clock.Now().UTC().Format(time.RFC3339),
	}
	return note, s.append(stage, note)
}

func (s *Store) append(stage workflow.StageID, note Note) error {
	notes, err := s.List(stage)
	if err != nil {
		return err
	}
	notes = append(notes, note)
	if err := s.scope.WriteJSON(s.scope.EvidenceKey(string(stage)), notes); err != nil {
		return fmt.Errorf("persisting evidence for %s: %w", stage, err)
	}
	return nil
}

// extractReadableText walks the HTML tree collecting visible text, skipping
// script, style, and markup-only nodes. It returns the page title and the
// collected text bounded to maxExtractedRunes.
func extractReadableText(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				if n.Data == "head" {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.Type == html.ElementNode && c.Data == "title" && c.FirstChild != nil {
							title = strings.TrimSpace(c.FirstChild.Data)
						}
					}
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text = strings.Join(parts, " ")
	if runes := []rune(text); len(runes) > maxExtractedRunes {
		text = string(runes[:maxExtractedRunes])
	}
	return title, text, nil
}
