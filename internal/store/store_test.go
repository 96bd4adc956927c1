package store

import (
	"strings"
	"testing"

	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
)

func TestNewJobRecord(t *testing.T) {
	p := redaction.Policy{
		Mode:       redaction.Aggressive,
		Categories: redaction.NewCategorySet(redaction.SSN, redaction.CreditCard),
	}
	res := redaction.Result{
		RedactedText: "SSN: [REDACTED SSN]",
		Audit: []redaction.AuditEntry{
			{Category: redaction.SSN, Length: 11, Position: 5},
		},
	}

	rec := NewJobRecord("upload.pdf", p, res)
	if rec.Job.ID == "" || rec.Job.RedactionCount != 1 {
		t.Fatalf("Unexpected job: %+v", rec.Job)
	}
	if rec.Job.Mode != "aggressive" {
		t.Errorf("Expected aggressive mode, got %s", rec.Job.Mode)
	}
	if len(rec.Audit) != 1 || rec.Audit[0].JobID != rec.Job.ID || rec.Audit[0].Category != "ssn" {
		t.Errorf("Unexpected audit rows: %+v", rec.Audit)
	}

	other := NewJobRecord("upload.pdf", p, res)
	if other.Job.ID == rec.Job.ID {
		t.Error("Expected distinct job IDs")
	}
}

func TestBuildInserts(t *testing.T) {
	jobs := []*Job{{ID: "a"}, {ID: "b"}}
	query, args := buildJobInsert(jobs)
	if len(args) != 2*jobColumns {
		t.Errorf("Expected %d args, got %d", 2*jobColumns, len(args))
	}
	if !strings.Contains(query, "($8, $9, $10, $11, $12, $13, $14)") {
		t.Errorf("Unexpected placeholders in %s", query)
	}

	query, args = buildAuditInsert([]AuditRow{{JobID: "a"}, {JobID: "a", Seq: 1}, {JobID: "b"}})
	if len(args) != 3*auditColumns {
		t.Errorf("Expected %d args, got %d", 3*auditColumns, len(args))
	}
	if !strings.HasSuffix(strings.TrimSpace(query), "($11, $12, $13, $14, $15)") {
		t.Errorf("Unexpected placeholders in %s", query)
	}
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	parts := chunk(items, 2)
	if len(parts) != 3 || len(parts[2]) != 1 {
		t.Errorf("Unexpected chunks %v", parts)
	}
	if chunk([]int{}, 2) != nil {
		t.Error("Expected no chunks for empty input")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://redactor:hunter2@db:5432/redactor?sslmode=disable")
	if strings.Contains(got, "hunter2") || !strings.Contains(got, "redactor:***@db") {
		t.Errorf("Password not masked: %s", got)
	}
	if got := maskDatabaseURL("postgres://db/redactor"); got != "postgres://db/redactor" {
		t.Errorf("Unexpected change: %s", got)
	}
}

func TestNewStoreUnreachable(t *testing.T) {
	_, err := NewStore(&Config{DatabaseURL: "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1"}, logger.Nop())
	if err == nil {
		t.Error("Expected error for unreachable database")
	}
}
