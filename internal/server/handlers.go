package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/scan-redactor/internal/export"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/raaihank/scan-redactor/internal/store"
	"github.com/raaihank/scan-redactor/internal/websocket"
	"go.uber.org/zap"
)

// RedactRequest is the body of POST /v1/redact. Policy fields that are
// omitted keep the server default.
type RedactRequest struct {
	Text   string          `json:"text"`
	Policy json.RawMessage `json:"policy,omitempty"`
}

// RedactResponse is returned by POST /v1/redact.
type RedactResponse struct {
	RequestID          string                 `json:"request_id"`
	RedactedText       string                 `json:"redacted_text"`
	Audit              []redaction.AuditEntry `json:"audit"`
	Counts             map[string]int         `json:"counts"`
	NoSensitiveContent bool                   `json:"no_sensitive_content"`
	Policy             redaction.Policy       `json:"policy"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":          "scan-redactor",
		"version":       s.deps.Version,
		"policy":        s.Policy(),
		"rules":         s.deps.Rules,
		"ner_enabled":   s.config.NER.Enabled,
		"documents":     s.deps.Documents != nil,
		"ocr_languages": s.config.OCR.Languages,
		"ocr_cache":     s.config.Cache.Enabled,
		"audit_store":   s.deps.Audit != nil,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"websocket":     s.hub.GetStats(),
	})
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	var req RedactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a text field")
		return
	}

	policy, err := s.resolvePolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, redaction.ErrInvalidPolicy.Type, err.Error())
		return
	}

	result, err := s.deps.Engine.Redact(r.Context(), req.Text, policy)
	if err != nil {
		log.Error("Redaction failed", zap.Error(err))
		writeRedactionError(w, err)
		return
	}

	counts := result.Counts()
	log.LogRedactionSummary("Text redacted", counts, len(result.Audit))
	s.record(r.Context(), "api:text", policy, result)
	s.publish(r, "text", policy, 0, counts, len(result.Audit), time.Since(start))

	audit := result.Audit
	if audit == nil {
		audit = []redaction.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, RedactResponse{
		RequestID:          requestID,
		RedactedText:       result.RedactedText,
		Audit:              audit,
		Counts:             counts,
		NoSensitiveContent: result.NoSensitiveContent(),
		Policy:             policy,
	})
}

// handleDocument accepts a multipart upload with a "file" part and an
// optional "format" (pdf, docx or text) and "policy" (JSON) field, and
// returns the redacted document.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	if s.deps.Documents == nil {
		writeError(w, http.StatusServiceUnavailable, "documents_disabled", "document processing is not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read upload")
		return
	}

	format := export.FormatPDF
	if f := r.FormValue("format"); f != "" {
		if format, err = export.ParseFormat(f); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
			return
		}
	}

	var override json.RawMessage
	if p := r.FormValue("policy"); p != "" {
		override = json.RawMessage(p)
	}
	policy, err := s.resolvePolicy(override)
	if err != nil {
		writeError(w, http.StatusBadRequest, redaction.ErrInvalidPolicy.Type, err.Error())
		return
	}

	res, err := s.deps.Documents.Process(r.Context(), bytes.NewReader(data), policy, format)
	if err != nil {
		log.Error("Document processing failed", zap.String("filename", header.Filename), zap.Error(err))
		writeRedactionError(w, err)
		return
	}

	log.LogRedactionSummary("Document redacted", res.Stats.Counts, res.Stats.Redactions)
	s.record(r.Context(), "api:document:"+filepath.Base(header.Filename), policy, res.Result)
	s.publish(r, "document", policy, res.Stats.Pages, res.Stats.Counts, res.Stats.Redactions, time.Since(start))

	name := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	if name == "" || name == "." {
		name = "document"
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+".redacted"+format.Extension()+`"`)
	w.Header().Set("X-Redaction-Count", strconv.Itoa(res.Stats.Redactions))
	w.Header().Set("X-Page-Count", strconv.Itoa(res.Stats.Pages))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Outputs[format])
}

// resolvePolicy applies a JSON override on top of the current default.
func (s *Server) resolvePolicy(override json.RawMessage) (redaction.Policy, error) {
	policy := s.Policy()
	if len(override) == 0 {
		return policy, nil
	}
	if err := json.Unmarshal(override, &policy); err != nil {
		return redaction.Policy{}, err
	}
	return policy, nil
}

// record stores the audit trail when a store is configured. Failures are
// logged and do not fail the request.
func (s *Server) record(ctx context.Context, source string, p redaction.Policy, res redaction.Result) {
	s.redactions.Add(int64(len(res.Audit)))
	if s.deps.Audit == nil {
		return
	}
	rec := store.NewJobRecord(source, p, res)
	if err := s.deps.Audit.Insert(ctx, rec); err != nil {
		s.logger.WithRequestID(getRequestID(ctx)).Warn("Failed to store audit trail", zap.Error(err))
	}
}

func (s *Server) publish(r *http.Request, source string, p redaction.Policy, pages int, counts map[string]int, total int, elapsed time.Duration) {
	s.hub.PublishRedaction(websocket.RedactionEvent{
		RequestID:    getRequestID(r.Context()),
		Source:       source,
		Mode:         p.Mode.String(),
		Pages:        pages,
		Counts:       counts,
		Total:        total,
		ProcessingMS: float64(elapsed.Microseconds()) / 1000,
		ClientIP:     clientIP(r),
	})
}

func (s *Server) maxUpload() int64 {
	mb := s.config.Server.MaxUploadMB
	if mb <= 0 {
		mb = 50
	}
	return mb << 20
}

// writeRedactionError maps engine and pipeline errors to HTTP statuses.
func writeRedactionError(w http.ResponseWriter, err error) {
	var extraction *redaction.ExtractionError
	var typed *redaction.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "cancelled", "request was cancelled")
	case errors.As(err, &extraction):
		writeError(w, http.StatusUnprocessableEntity, redaction.ErrExtractionFailed.Type, extraction.Error())
	case errors.As(err, &typed):
		writeError(w, http.StatusInternalServerError, typed.Type, typed.Message)
	default:
		writeError(w, http.StatusInternalServerError, "internal", "redaction failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
