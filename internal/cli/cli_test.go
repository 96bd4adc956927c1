package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/spf13/cobra"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "scan-redactor "+Version) {
		t.Errorf("Unexpected output %q", out)
	}

	out, err = executeCommand(t, "", "version", "--json")
	if err != nil {
		t.Fatalf("version --json failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if info["version"] != Version {
		t.Errorf("version = %q", info["version"])
	}
}

func TestRedactCommand(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name:  "default policy",
			stdin: "SSN: 123-45-6789",
			args:  []string{"redact"},
			want:  "SSN: [REDACTED SSN]",
		},
		{
			name:  "category filter",
			stdin: "SSN: 123-45-6789",
			args:  []string{"redact", "--categories", "credit_card"},
			want:  "SSN: 123-45-6789",
		},
		{
			name:  "clean text",
			stdin: "nothing to see",
			args:  []string{"redact"},
			want:  "nothing to see",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("redact failed: %v", err)
			}
			if out != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestRedactCommandJSON(t *testing.T) {
	out, err := executeCommand(t, "SSN: 123-45-6789", "redact", "--json")
	if err != nil {
		t.Fatalf("redact failed: %v", err)
	}
	var resp redactOutput
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if resp.RedactedText != "SSN: [REDACTED SSN]" {
		t.Errorf("RedactedText = %q", resp.RedactedText)
	}
	if len(resp.Audit) != 1 || resp.Audit[0].Position != 5 || resp.Audit[0].Length != 11 {
		t.Errorf("Unexpected audit %+v", resp.Audit)
	}
	if resp.Counts["ssn"] != 1 {
		t.Errorf("Counts = %v", resp.Counts)
	}
}

func TestRedactCommandRejectsBadMode(t *testing.T) {
	if _, err := executeCommand(t, "x", "redact", "--mode", "reckless"); err == nil {
		t.Fatal("Expected an invalid mode to fail")
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "notes.csv")
	if err := os.WriteFile(input, []byte("id,text\n1,SSN: 078-05-1120\n2,fine\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(t, "", "batch", input, "--json")
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	var result struct {
		TotalRecords int64 `json:"total_records"`
		Redactions   int64 `json:"redactions"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if result.TotalRecords != 2 || result.Redactions != 1 {
		t.Errorf("Unexpected result %+v", result)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.redacted.csv"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if !strings.Contains(string(data), "[REDACTED SSN]") || strings.Contains(string(data), "078-05-1120") {
		t.Errorf("Unexpected output %q", data)
	}
}

func TestBatchCommandRejectsNonPositiveSizes(t *testing.T) {
	input := filepath.Join(t.TempDir(), "notes.csv")
	if err := os.WriteFile(input, []byte("id,text\n1,fine\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{
		{"--workers", "0"},
		{"--workers", "-1"},
		{"--batch-size", "0"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := executeCommand(t, "", append([]string{"batch", input}, args...)...)
			if err == nil || !strings.Contains(err.Error(), "must be positive") {
				t.Errorf("Expected a validation error, got %v", err)
			}
		})
	}
}

func TestAuditRequiresStore(t *testing.T) {
	_, err := executeCommand(t, "", "audit", "stats")
	if err == nil || !strings.Contains(err.Error(), "store") {
		t.Errorf("Expected disabled-store error, got %v", err)
	}
}

func TestPolicyFlagsResolve(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantMode redaction.Mode
		wantSSN  bool
		wantOCR  bool
	}{
		{"config defaults", nil, redaction.Conservative, true, false},
		{"aggressive", []string{"--mode", "aggressive", "--ocr-tolerance"}, redaction.Aggressive, true, true},
		{"categories", []string{"--categories", "credit_card,address"}, redaction.Conservative, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pf policyFlags
			cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
			pf.register(cmd)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatal(err)
			}
			p, err := pf.resolve(cmd, config.GetDefaults().Redaction)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if p.Mode != tt.wantMode || p.Categories.Has(redaction.SSN) != tt.wantSSN || p.OCRTolerance != tt.wantOCR {
				t.Errorf("Unexpected policy %+v", p)
			}
		})
	}
}

func TestHealthCommand(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	out, err := executeCommand(t, "", "health", "--url", up.URL+"/health")
	if err != nil || !strings.Contains(out, "passed") {
		t.Errorf("healthy server: out %q, err %v", out, err)
	}
	if _, err := executeCommand(t, "", "health", "--url", down.URL+"/health"); err == nil {
		t.Error("Expected an unhealthy server to fail the check")
	}
}
