package api

import (
	"sync"

	"github.com/kalambet/atelier/internal/completion"
	"github.com/kalambet/atelier/internal/config"
	"github.com/kalambet/atelier/internal/conversation"
	"github.com/kalambet/atelier/internal/evidence"
	"github.com/kalambet/atelier/internal/ranking"
	"github.com/kalambet/atelier/internal/storage"
	"github.com/kalambet/atelier/internal/summary"
	"github.com/kalambet/atelier/internal/workflow"
	"github.com/kalambet/atelier/internal/workspace"
)

// Service assembles per-workspace components on demand. Persistent state
// lives in the shared store under workspace-scoped keys; the active stage
// is session state and lives here, one controller per workspace code.
type Service struct {
	store     *storage.Store
	completer conversation.Completer
	cfg       config.CompletionConfig

	mu          sync.Mutex
	controllers map[string]*workflow.Controller
}

// NewService creates a Service over the shared store.
func NewService(store *storage.Store, completer conversation.Completer, cfg config.CompletionConfig) *Service {
	return &Service{
		store:       store,
		completer:   completer,
		cfg:         cfg,
		controllers: make(map[string]*workflow.Controller),
	}
}

// Resolve maps a supplied code (possibly blank) to the effective workspace
// code, falling back to the last active one.
func (s *Service) Resolve(supplied string) (string, error) {
	return workspace.Resolve(s.store, supplied)
}

// session bundles every component bound to one workspace code.
type session struct {
	scope      *workspace.Scope
	creds      *completion.Credentials
	conv       *conversation.Manager
	summaries  *summary.Engine
	ranks      *ranking.Engine
	evidence   *evidence.Store
	status     *workflow.StatusStore
	controller *workflow.Controller
}

func (s *Service) session(code string) *session {
	scope := workspace.NewScope(s.store, code)
	creds := completion.NewCredentials(scope).WithFallback(s.cfg.DefaultProvider)
	conv := conversation.NewManager(scope, creds, s.completer, s.cfg.ChatModel, s.cfg.Temperature)
	status := workflow.NewStatusStore(scope)
	return &session{
		scope:      scope,
		creds:      creds,
		conv:       conv,
		summaries:  summary.NewEngine(scope, conv, creds, s.completer, status, s.cfg.SummaryModel, s.cfg.Temperature),
		ranks:      ranking.NewEngine(scope),
		evidence:   evidence.NewStore(scope),
		status:     status,
		controller: s.controller(code),
	}
}

func (s *Service) controller(code string) *workflow.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[code]
	if !ok {
		c = workflow.NewController()
		s.controllers[code] = c
	}
	return c
}

// SelectStage makes stage the active one for the workspace.
func (s *Service) SelectStage(code string, stage workflow.StageID) error {
	c := s.controller(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.Select(stage)
}

// StageState reports the active stage plus the derived progress reading.
func (s *Service) StageState(code string) (active workflow.StageID, progress int, label string) {
	c := s.controller(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.Active(), c.ProgressPercent(), c.Label()
}
