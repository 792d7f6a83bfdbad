package ranking

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kalambet/atelier/internal/workspace"
)

// Preference is the derived affinity reading for one stored rank value.
type Preference struct {
	Label        string `json:"label"`
	WidthPercent int    `json:"width_percent"`
	RankText     string `json:"rank_text"`
}

// Row is one decision-table line: an artifact joined with its current
// preference reading.
type Row struct {
	Artifact   Artifact   `json:"artifact"`
	Preference Preference `json:"preference"`
}

// Engine reads and writes evaluation ranks for one workspace. Stored rank
// values are kept verbatim; bounds are enforced only when deriving the
// preference reading, so an out-of-range value survives storage and is
// clamped on display.
type Engine struct {
	scope *workspace.Scope
}

// NewEngine creates a ranking engine over one workspace scope.
func NewEngine(scope *workspace.Scope) *Engine {
	return &Engine{scope: scope}
}

// Ranks returns the stored artifact-to-rank map. Missing or malformed
// storage yields an empty map.
func (e *Engine) Ranks() (map[string]string, error) {
	ranks := map[string]string{}
	if _, err := e.scope.ReadJSON(e.scope.RankingKey(), &ranks); err != nil {
		return nil, fmt.Errorf("loading rankings: %w", err)
	}
	return ranks, nil
}

// SetRank stores value for the given artifact. An empty value clears the
// artifact's rank. The value is stored as supplied, without range checks.
func (e *Engine) SetRank(artifactID, value string) error {
	if _, ok := LookupArtifact(artifactID); !ok {
		return fmt.Errorf("unknown artifact %q", artifactID)
	}
	ranks, err := e.Ranks()
	if err != nil {
		return err
	}
	if value == "" {
		delete(ranks, artifactID)
	} else {
		ranks[artifactID] = value
	}
	return e.scope.WriteJSON(e.scope.RankingKey(), ranks)
}

// Table recomputes the full decision table from the catalog and the stored
// ranks. Every artifact appears, ranked or not.
func (e *Engine) Table() ([]Row, error) {
	ranks, err := e.Ranks()
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, Row{Artifact: a, Preference: ComputePreference(ranks[a.ID])})
	}
	return rows, nil
}

// ComputePreference derives the affinity reading from a raw stored rank.
// A blank or non-numeric value reads as unranked. Numeric values are
// bounded to 1..7, then mapped linearly so rank 1 reads 100% and rank 7
// reads 14%.
func ComputePreference(raw string) Preference {
	if raw == "" {
		return unranked()
	}
	rank, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return unranked()
	}

	bounded := math.Max(1, math.Min(7, rank))
	percent := int(math.Round((8 - bounded) / 7 * 100))

	var qualitative string
	switch {
	case bounded == 1:
		qualitative = "Priority candidate"
	case bounded <= 3:
		qualitative = "Preferred direction"
	case bounded <= 5:
		qualitative = "Viable alternative"
	default:
		qualitative = "Limited alignment"
	}

	return Preference{
		Label:        fmt.Sprintf("%s · %d%% affinity", qualitative, percent),
		WidthPercent: percent,
		RankText:     fmt.Sprintf("Rank %s", strconv.FormatFloat(bounded, 'f', -1, 64)),
	}
}

func unranked() Preference {
	return Preference{
		Label:        "Awaiting evaluation",
		WidthPercent: 0,
		RankText:     "Unranked",
	}
}
