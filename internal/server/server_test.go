package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/export"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/pipeline"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/raaihank/scan-redactor/internal/store"
)

type fakeDocuments struct {
	err    error
	policy redaction.Policy
}

func (f *fakeDocuments) Process(ctx context.Context, doc io.ReaderAt, p redaction.Policy, formats ...export.Format) (*pipeline.DocumentResult, error) {
	f.policy = p
	if f.err != nil {
		return nil, f.err
	}
	result := redaction.Result{
		RedactedText: "SSN: [REDACTED SSN]",
		Audit:        []redaction.AuditEntry{{Category: redaction.SSN, Length: 11, Position: 5}},
	}
	res := &pipeline.DocumentResult{
		Result:  result,
		Outputs: map[export.Format][]byte{},
		Stats:   pipeline.ProcessingStats{Pages: 2, Redactions: 1, Counts: result.Counts()},
	}
	for _, format := range formats {
		res.Outputs[format] = []byte("rendered " + string(format))
	}
	return res, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []store.JobRecord
}

func (f *fakeAudit) Insert(_ context.Context, rec store.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()
	if deps.Engine == nil {
		deps.Engine = redaction.NewEngine(logger.Nop())
	}
	s, err := New(cfg, deps, logger.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{Version: "test"})

	for _, path := range []string{"/health", "/info"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("Expected a request ID header")
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
		})
	}
}

func TestHandleRedact(t *testing.T) {
	audit := &fakeAudit{}
	s := newTestServer(t, config.GetDefaults(), Deps{Audit: audit})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantText   string
		wantCount  int
	}{
		{
			name:       "default policy",
			body:       map[string]any{"text": "SSN: 123-45-6789"},
			wantStatus: http.StatusOK,
			wantText:   "SSN: [REDACTED SSN]",
			wantCount:  1,
		},
		{
			name: "override excludes ssn",
			body: map[string]any{
				"text":   "SSN: 123-45-6789",
				"policy": map[string]any{"categories": []string{"credit_card"}},
			},
			wantStatus: http.StatusOK,
			wantText:   "SSN: 123-45-6789",
		},
		{
			name:       "empty text",
			body:       map[string]any{"text": ""},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad policy",
			body:       map[string]any{"text": "x", "policy": map[string]any{"mode": "reckless"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not an object",
			body:       []string{"x"},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, s.Handler(), "/v1/redact", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp RedactResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.RedactedText != tt.wantText || len(resp.Audit) != tt.wantCount {
				t.Errorf("got %q with %d entries", resp.RedactedText, len(resp.Audit))
			}
			if resp.NoSensitiveContent != (tt.wantCount == 0) {
				t.Errorf("NoSensitiveContent = %v", resp.NoSensitiveContent)
			}
		})
	}

	if len(audit.records) != 3 {
		t.Fatalf("Expected 3 audit records, got %d", len(audit.records))
	}
	if got := audit.records[0].Audit; len(got) != 1 || got[0].Length != 11 || got[0].Position != 5 {
		t.Errorf("Unexpected audit rows %+v", got)
	}
}

func TestSetPolicy(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{})
	s.SetPolicy(redaction.Policy{Mode: redaction.Conservative, Categories: redaction.NewCategorySet(redaction.CreditCard)})

	rec := postJSON(t, s.Handler(), "/v1/redact", map[string]any{"text": "SSN: 123-45-6789"})
	var resp RedactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RedactedText != "SSN: 123-45-6789" {
		t.Errorf("Expected the updated policy to skip SSNs, got %q", resp.RedactedText)
	}
}

func upload(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile("file", "scan.pdf")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleDocument(t *testing.T) {
	docs := &fakeDocuments{}
	s := newTestServer(t, config.GetDefaults(), Deps{Documents: docs})

	t.Run("docx output", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, upload(t, map[string]string{
			"format": "docx",
			"policy": `{"mode":"aggressive"}`,
		}, []byte("%PDF-1.4")))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		if rec.Body.String() != "rendered docx" {
			t.Errorf("Unexpected body %q", rec.Body)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "scan.redacted.docx") {
			t.Errorf("Unexpected Content-Disposition %q", cd)
		}
		if rec.Header().Get("X-Redaction-Count") != "1" || rec.Header().Get("X-Page-Count") != "2" {
			t.Errorf("Unexpected count headers %v", rec.Header())
		}
		if docs.policy.Mode != redaction.Aggressive {
			t.Error("Expected policy override to reach the pipeline")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, upload(t, nil, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, upload(t, map[string]string{"format": "odt"}, []byte("x")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("extraction failure", func(t *testing.T) {
		docs.err = redaction.NewExtractionError(redaction.StageOCR, 0, errors.New("tesseract crashed"))
		defer func() { docs.err = nil }()

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, upload(t, nil, []byte("x")))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "extraction_failed") {
			t.Errorf("Unexpected body %s", rec.Body)
		}
	})
}

func TestDocumentsDisabled(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, nil, []byte("x")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, Burst: 2}
	s := newTestServer(t, cfg, Deps{})

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, postJSON(t, s.Handler(), "/v1/redact", map[string]any{"text": "hi"}).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Unexpected status sequence %v", codes)
	}

	// health checks are not limited
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60})
	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	if n := l.Cleanup(time.Now().Add(time.Minute)); n != 2 {
		t.Errorf("Cleanup removed %d clients, want 2", n)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}, "10.0.0.1:1234", "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.5"}, "10.0.0.1:1234", "198.51.100.5"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
