package workflow

import (
	"fmt"
	"math"

	"github.com/kalambet/atelier/internal/workspace"
)

// Controller tracks which stage is active for one workspace. Any stage may
// be selected at any time — the workflow recommends the canonical order but
// never enforces it, so teams can revisit earlier stages freely.
type Controller struct {
	stages []StageID
	active int
}

// NewController creates a Controller with the first stage active.
func NewController() *Controller {
	return &Controller{stages: Stages()}
}

// Select transitions directly to the named stage.
func (c *Controller) Select(id StageID) error {
	for i, s := range c.stages {
		if s == id {
			c.active = i
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", id)
}

// Active returns the currently active stage id.
func (c *Controller) Active() StageID {
	return c.stages[c.active]
}

// ActiveIndex returns the zero-based index of the active stage.
func (c *Controller) ActiveIndex() int {
	return c.active
}

// ProgressPercent returns the progress fraction activeIndex/(stageCount-1)
// expressed as a whole percentage, clamped to [0,100]. A single-stage
// workflow reports 100.
func (c *Controller) ProgressPercent() int {
	if len(c.stages) <= 1 {
		return 100
	}
	pct := float64(c.active) / float64(len(c.stages)-1) * 100
	return int(math.Max(0, math.Min(100, math.Round(pct))))
}

// Label returns the human-readable progress label, e.g. "Stage 2 of 5".
func (c *Controller) Label() string {
	return fmt.Sprintf("Stage %d of %d", c.active+1, len(c.stages))
}

// StatusStore reads and writes the persisted per-stage completion map for a
// workspace. Completion is set exactly once a summary is produced for the
// stage (remote or fallback) and is never auto-reset.
type StatusStore struct {
	scope *workspace.Scope
}

// NewStatusStore creates a StatusStore bound to the workspace scope.
func NewStatusStore(scope *workspace.Scope) *StatusStore {
	return &StatusStore{scope: scope}
}

// Completed returns the persisted completion map. Stages without an entry
// are not completed.
func (s *StatusStore) Completed() (map[StageID]bool, error) {
	raw := make(map[string]bool)
	if _, err := s.scope.ReadJSON(s.scope.StatusKey(), &raw); err != nil {
		return nil, fmt.Errorf("reading stage status: %w", err)
	}
	status := make(map[StageID]bool, len(raw))
	for k, v := range raw {
		status[StageID(k)] = v
	}
	return status, nil
}

// MarkCompleted sets the completion flag for stage and persists the full map.
func (s *StatusStore) MarkCompleted(stage StageID) error {
	status, err := s.Completed()
	if err != nil {
		return err
	}
	status[stage] = true

	raw := make(map[string]bool, len(status))
	for k, v := range status {
		raw[string(k)] = v
	}
	if err := s.scope.WriteJSON(s.scope.StatusKey(), raw); err != nil {
		return fmt.Errorf("persisting stage status: %w", err)
	}
	return nil
}
