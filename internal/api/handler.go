package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/atelier/internal/conversation"
	"github.com/kalambet/atelier/internal/evidence"
	"github.com/kalambet/atelier/internal/ranking"
	"github.com/kalambet/atelier/internal/summary"
	"github.com/kalambet/atelier/internal/workflow"
	"github.com/kalambet/atelier/internal/workspace"
)

const maxRequestBodySize = 1 << 20 // 1MB

// NewHandler returns the workspace REST API.
func NewHandler(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/v1/artifacts", handleArtifacts)
	r.Post("/v1/workspace/resolve", handleResolve(s))

	r.Route("/v1/workspace/{code}", func(r chi.Router) {
		r.Get("/stages", handleStages(s))
		r.Post("/stages/active", handleSelectStage(s))
		r.Get("/stages/{stage}/conversation", handleConversation(s))
		r.Post("/stages/{stage}/conversation", handleSendMessage(s))
		r.Post("/stages/{stage}/summarize", handleSummarize(s))
		r.Get("/stages/{stage}/summary", handleSummary(s))
		r.Get("/stages/{stage}/evidence", handleListEvidence(s))
		r.Post("/stages/{stage}/evidence", handleAddEvidence(s))
		r.Get("/rankings", handleRankings(s))
		r.Put("/rankings/{artifact}", handleSetRank(s))
		r.Get("/decision-table", handleDecisionTable(s))
		r.Get("/provider", handleGetProvider(s))
		r.Put("/provider", handleSetProvider(s))
		r.Put("/keys/{provider}", handleSetKey(s))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleArtifacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ranking.Artifacts())
}

func handleResolve(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		code, err := s.Resolve(req.Code)
		if err != nil {
			if errors.Is(err, workspace.ErrLoginRequired) {
				httpError(w, http.StatusUnauthorized, "login_required", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "resolving workspace: %v", err)
			return
		}
		writeJSON(w, map[string]string{"code": code})
	}
}

// stageView is one row of the stage listing.
type stageView struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Active     bool   `json:"active"`
	Completed  bool   `json:"completed"`
	HasSummary bool   `json:"has_summary"`
}

func handleStages(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		sess := s.session(code)

		completed, err := sess.status.Completed()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading stage status: %v", err)
			return
		}
		active, progress, label := s.StageState(code)

		views := make([]stageView, 0, len(workflow.Stages()))
		for _, id := range workflow.Stages() {
			cfg, _ := workflow.Lookup(id)
			_, hasSummary, err := sess.summaries.Load(id)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "reading summary: %v", err)
				return
			}
			views = append(views, stageView{
				ID:         string(id),
				Title:      cfg.Title,
				Active:     id == active,
				Completed:  completed[id],
				HasSummary: hasSummary,
			})
		}

		writeJSON(w, map[string]any{
			"stages":           views,
			"active":           string(active),
			"progress_percent": progress,
			"progress_label":   label,
		})
	}
}

func handleSelectStage(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stage string `json:"stage"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.SelectStage(chi.URLParam(r, "code"), workflow.StageID(req.Stage)); err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleConversation(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		stage := workflow.StageID(chi.URLParam(r, "stage"))
		if _, ok := workflow.Lookup(stage); !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown stage %q", stage)
			return
		}
		entries, err := sess.conv.Load(stage)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading conversation: %v", err)
			return
		}
		if entries == nil {
			entries = []conversation.Entry{}
		}
		writeJSON(w, entries)
	}
}

func handleSendMessage(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		sess := s.session(chi.URLParam(r, "code"))
		stage := workflow.StageID(chi.URLParam(r, "stage"))
		if _, ok := workflow.Lookup(stage); !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown stage %q", stage)
			return
		}

		reply, err := sess.conv.Send(r.Context(), stage, req.Message)
		if err != nil {
			if errors.Is(err, conversation.ErrEmptyMessage) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "message must not be empty")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "sending message: %v", err)
			return
		}
		writeJSON(w, reply)
	}
}

func handleSummarize(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		stage := workflow.StageID(chi.URLParam(r, "stage"))

		status, rec, err := sess.summaries.Summarize(r.Context(), stage)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "summarizing stage: %v", err)
			return
		}
		if status == summary.StatusNothingToSummarize {
			httpError(w, http.StatusConflict, "nothing_to_summarize", "start a dialogue before requesting a summary")
			return
		}
		writeJSON(w, rec)
	}
}

func handleSummary(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		stage := workflow.StageID(chi.URLParam(r, "stage"))
		if _, ok := workflow.Lookup(stage); !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown stage %q", stage)
			return
		}

		rec, ok, err := sess.summaries.Load(stage)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading summary: %v", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no summary recorded for stage %q", stage)
			return
		}
		writeJSON(w, rec)
	}
}

func handleListEvidence(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		stage := workflow.StageID(chi.URLParam(r, "stage"))

		notes, err := sess.evidence.List(stage)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if notes == nil {
			notes = []evidence.Note{}
		}
		writeJSON(w, notes)
	}
}

func handleAddEvidence(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Caption string `json:"caption"`
			Content string `json:"content"`
			URL     string `json:"url"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		sess := s.session(chi.URLParam(r, "code"))
		stage := workflow.StageID(chi.URLParam(r, "stage"))

		var (
			note evidence.Note
			err  error
		)
		if req.URL != "" {
			note, err = sess.evidence.AddURL(r.Context(), stage, req.Caption, req.URL)
		} else {
			note, err = sess.evidence.Add(stage, req.Caption, req.Content)
		}
		if err != nil {
			if errors.Is(err, evidence.ErrEmptyContent) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "evidence content must not be empty")
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "adding evidence: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(note)
	}
}

func handleRankings(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		ranks, err := sess.ranks.Ranks()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading rankings: %v", err)
			return
		}
		writeJSON(w, ranks)
	}
}

func handleSetRank(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Value string `json:"value"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		sess := s.session(chi.URLParam(r, "code"))
		artifact := chi.URLParam(r, "artifact")

		if err := sess.ranks.SetRank(artifact, req.Value); err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		writeJSON(w, ranking.ComputePreference(req.Value))
	}
}

func handleDecisionTable(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		rows, err := sess.ranks.Table()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building decision table: %v", err)
			return
		}
		writeJSON(w, rows)
	}
}

func handleGetProvider(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(chi.URLParam(r, "code"))
		provider, err := sess.creds.ActiveProvider()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading provider: %v", err)
			return
		}
		key, err := sess.creds.APIKey(provider)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading key: %v", err)
			return
		}
		writeJSON(w, map[string]any{"provider": provider, "has_key": key != ""})
	}
}

func handleSetProvider(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Provider string `json:"provider"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Provider == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provider must not be empty")
			return
		}
		sess := s.session(chi.URLParam(r, "code"))
		if err := sess.creds.SetActiveProvider(req.Provider); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving provider: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSetKey(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key string `json:"key"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		sess := s.session(chi.URLParam(r, "code"))
		if err := sess.creds.SetAPIKey(chi.URLParam(r, "provider"), req.Key); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving key: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
