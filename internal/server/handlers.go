package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/batch"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/redact"
	"github.com/textveil/textveil/internal/registry"
	"github.com/textveil/textveil/internal/verify"
	"github.com/textveil/textveil/internal/websocket"

	"github.com/gorilla/mux"
)

const serverVersion = "0.3.0"

type errorResponse struct {
	Error string `json:"error"`
}

type redactRequest struct {
	DocumentID   string `json:"document_id"`
	Text         string `json:"text"`
	Technique    string `json:"technique,omitempty"`
	HybridRandom *bool  `json:"hybrid_random,omitempty"`
	Verify       *bool  `json:"verify,omitempty"`
}

type redactResponse struct {
	RunID            string         `json:"run_id"`
	DocumentID       string         `json:"document_id"`
	RedactedText     string         `json:"redacted_text"`
	RegistryRevision string         `json:"registry_revision"`
	FromCache        bool           `json:"from_cache,omitempty"`
	Record           *redact.Record `json:"record,omitempty"`
	Report           *verify.Report `json:"report,omitempty"`
}

type batchRequest struct {
	Documents    []batch.Document `json:"documents"`
	Technique    string           `json:"technique,omitempty"`
	HybridRandom *bool            `json:"hybrid_random,omitempty"`
	Workers      int              `json:"workers,omitempty"`
	Verify       *bool            `json:"verify,omitempty"`
}

type batchResultPayload struct {
	DocumentID   string         `json:"document_id"`
	RedactedText string         `json:"redacted_text,omitempty"`
	FromCache    bool           `json:"from_cache,omitempty"`
	Record       *redact.Record `json:"record,omitempty"`
	Report       *verify.Report `json:"report,omitempty"`
	Error        string         `json:"error,omitempty"`
	DurationMs   float64        `json:"duration_ms"`
}

type batchResponse struct {
	RunID            string                 `json:"run_id"`
	RegistryRevision string                 `json:"registry_revision"`
	Technique        string                 `json:"technique"`
	Results          []batchResultPayload   `json:"results"`
	Summary          redact.RunSummary      `json:"summary"`
	Inconsistencies  []verify.Inconsistency `json:"inconsistencies,omitempty"`
	Pass             bool                   `json:"pass"`
	Failed           int                    `json:"failed"`
	ElapsedMs        float64                `json:"elapsed_ms"`
}

type verifyRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

type mergeRequest struct {
	Entities []registry.Record `json:"entities"`
	Strategy string            `json:"strategy"`
}

// updateEntityRequest is a partial entity: absent fields are left unchanged.
type updateEntityRequest struct {
	Alias         *string   `json:"alias,omitempty"`
	Type          *string   `json:"type,omitempty"`
	Variations    *[]string `json:"variations,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CaseSensitive *bool     `json:"case_sensitive,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "textveil",
		"version":           serverVersion,
		"registry_entities": s.reg.Len(),
		"registry_revision": s.reg.Revision(),
		"pattern_rules":     s.catalog.Names(),
		"technique":         s.config.Redaction.Technique,
		"cache_enabled":     s.cache != nil,
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = "doc-1"
	}

	cfg, err := s.runnerConfig(req.Technique, req.HybridRandom, req.Verify, 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	runner := batch.NewRunner(s.reg, s.catalog, s.cache, cfg, s.logger.Logger)
	report := runner.Run(r.Context(), []batch.Document{{ID: req.DocumentID, Text: req.Text}})

	res := report.Results[0]
	if res.Err != nil {
		s.writeError(w, statusForError(res.Err), res.Err)
		return
	}

	s.broadcastRedaction(report, &res)

	s.writeJSON(w, http.StatusOK, redactResponse{
		RunID:            report.RunID,
		DocumentID:       res.DocumentID,
		RedactedText:     res.RedactedText,
		RegistryRevision: report.RegistryRevision,
		FromCache:        res.FromCache,
		Record:           res.Record,
		Report:           res.Report,
	})
}

func (s *Server) handleRedactBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("documents is required"))
		return
	}
	for i := range req.Documents {
		if req.Documents[i].ID == "" {
			req.Documents[i].ID = fmt.Sprintf("doc-%d", i+1)
		}
	}

	cfg, err := s.runnerConfig(req.Technique, req.HybridRandom, req.Verify, req.Workers)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	runner := batch.NewRunner(s.reg, s.catalog, s.cache, cfg, s.logger.Logger)
	report := runner.Run(r.Context(), req.Documents)

	resp := batchResponse{
		RunID:            report.RunID,
		RegistryRevision: report.RegistryRevision,
		Technique:        string(report.Technique),
		Summary:          report.Summary,
		Inconsistencies:  report.Inconsistencies,
		Pass:             report.Pass,
		Failed:           report.Failed,
		ElapsedMs:        float64(report.Elapsed.Microseconds()) / 1000,
	}
	for i := range report.Results {
		res := &report.Results[i]
		payload := batchResultPayload{
			DocumentID:   res.DocumentID,
			RedactedText: res.RedactedText,
			FromCache:    res.FromCache,
			Record:       res.Record,
			Report:       res.Report,
			DurationMs:   float64(res.Duration.Microseconds()) / 1000,
		}
		if res.Err != nil {
			payload.Error = res.Err.Error()
			payload.RedactedText = ""
			payload.Record = nil
		} else {
			s.broadcastRedaction(report, res)
		}
		resp.Results = append(resp.Results, payload)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = "doc-1"
	}

	verifier := verify.New(s.reg.Snapshot(), s.catalog, verify.Options{
		MinPartialLength: s.config.Verification.MinPartialLength,
		CheckPatterns:    s.config.Verification.CheckPatterns,
	}, s.logger.Logger)

	report := verifier.VerifyDocument(req.DocumentID, req.Text)

	if s.wsHub != nil {
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeVerification,
			Timestamp: time.Now(),
			Data: websocket.VerificationEvent{
				DocumentID: report.DocumentID,
				Findings:   len(report.Findings),
				Pass:       report.Pass,
			},
		})
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRegistryStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reg.Stats())
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision": s.reg.Revision(),
		"entities": s.reg.Export(),
	})
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var rec registry.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	e := registry.Entity{
		Original:      rec.Original,
		Alias:         rec.Alias,
		Type:          registry.ParseType(rec.Type),
		Variations:    rec.Variations,
		Notes:         rec.Notes,
		CaseSensitive: rec.CaseSensitive,
	}
	if err := s.reg.Add(e); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if err := s.persist(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.broadcastRegistry("add", e.Key())
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"original": rec.Original,
		"alias":    rec.Alias,
		"revision": s.reg.Revision(),
	})
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	original := mux.Vars(r)["original"]

	var req updateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	upd := registry.EntityUpdate{
		Alias:         req.Alias,
		Variations:    req.Variations,
		Notes:         req.Notes,
		CaseSensitive: req.CaseSensitive,
	}
	if req.Type != nil {
		t := registry.ParseType(*req.Type)
		upd.Type = &t
	}

	if err := s.reg.Update(original, upd); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if err := s.persist(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.broadcastRegistry("update", original)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"original": original,
		"revision": s.reg.Revision(),
	})
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	original := mux.Vars(r)["original"]
	if !s.reg.Remove(original) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("entity %q not found", original))
		return
	}
	if err := s.persist(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.broadcastRegistry("remove", original)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"removed":  original,
		"revision": s.reg.Revision(),
	})
}

func (s *Server) handleAddVariation(w http.ResponseWriter, r *http.Request) {
	original := mux.Vars(r)["original"]

	var req struct {
		Variation string `json:"variation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Variation == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("variation is required"))
		return
	}

	if err := s.reg.AddVariation(original, req.Variation); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if err := s.persist(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.broadcastRegistry("variation", original)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"original":  original,
		"variation": req.Variation,
		"revision":  s.reg.Revision(),
	})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	strategy, err := registry.ParseMergeStrategy(req.Strategy)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	incoming, err := registry.NewFromRecords(req.Entities, zap.NewNop())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.reg.Merge(incoming, strategy)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if err := s.persist(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.broadcastRegistry("merge", "")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   result,
		"revision": s.reg.Revision(),
	})
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	rules := s.catalog.Rules()
	out := make([]map[string]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, map[string]string{
			"name":        rule.Name,
			"expr":        rule.Expr,
			"placeholder": rule.Placeholder,
			"scope":       string(rule.Scope),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.GetStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// runnerConfig resolves per-request overrides against the configured
// redaction defaults.
func (s *Server) runnerConfig(technique string, hybridRandom, verifyFlag *bool, workers int) (batch.Config, error) {
	cfg := batch.Config{
		Workers:      s.config.Redaction.Workers,
		HybridRandom: s.config.Redaction.HybridRandom,
		Verify:       s.config.Verification.Enabled,
		VerifyOpts: verify.Options{
			MinPartialLength: s.config.Verification.MinPartialLength,
			CheckPatterns:    s.config.Verification.CheckPatterns,
		},
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	name := technique
	if name == "" {
		name = s.config.Redaction.Technique
	}
	t, err := redact.ParseTechnique(name)
	if err != nil {
		return cfg, err
	}
	cfg.Technique = t

	if hybridRandom != nil {
		cfg.HybridRandom = *hybridRandom
	}
	if verifyFlag != nil {
		cfg.Verify = *verifyFlag
	}
	return cfg, nil
}

// broadcastRedaction emits a redaction event without any document content
func (s *Server) broadcastRedaction(report *batch.RunReport, res *batch.Result) {
	if s.wsHub == nil {
		return
	}

	ev := websocket.RedactionEvent{
		RunID:            report.RunID,
		DocumentID:       res.DocumentID,
		Technique:        string(report.Technique),
		RegistryRevision: report.RegistryRevision,
		FromCache:        res.FromCache,
		DurationMs:       float64(res.Duration.Microseconds()) / 1000,
	}
	if res.Record != nil {
		ev.Substitutions = len(res.Record.Substitutions)
		byKind := res.Record.CountByKind()
		ev.ByKind = make(map[string]int, len(byKind))
		for k, v := range byKind {
			ev.ByKind[string(k)] = v
		}
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		Timestamp: time.Now(),
		Data:      ev,
	})

	if res.Report != nil {
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeVerification,
			Timestamp: time.Now(),
			Data: websocket.VerificationEvent{
				DocumentID: res.Report.DocumentID,
				Findings:   len(res.Report.Findings),
				Pass:       res.Report.Pass,
			},
		})
	}
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	var conflict *registry.ConflictError
	var ambiguous *registry.AmbiguousVariationError
	var invalidPattern *pattern.InvalidPatternError
	var inconsistent *redact.RegistryInconsistencyError

	switch {
	case errors.As(err, &conflict), errors.As(err, &ambiguous):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidPattern):
		return http.StatusBadRequest
	case errors.As(err, &inconsistent):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
