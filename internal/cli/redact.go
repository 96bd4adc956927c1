package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/raaihank/scan-redactor/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRedactCommand(a *app) *cobra.Command {
	var (
		policy policyFlags
		nerURL string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "redact [file]",
		Short: "Redact sensitive data from text",
		Long: `Redact reads text from a file, or from stdin when no file is given,
and prints the redacted text. With --json the audit trail (category,
length and position of every redaction) is printed as well.

	Examples:
	  scan-redactor redact notes.txt
	  echo "SSN: 123-45-6789" | scan-redactor redact --mode aggressive
	  scan-redactor redact --categories ssn,credit_card --json form.txt
	  scan-redactor redact --ner-url http://localhost:8001 letter.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			p, err := policy.resolve(cmd, a.cfg.Redaction)
			if err != nil {
				return err
			}
			if nerURL != "" {
				a.cfg.NER.Enabled = true
				a.cfg.NER.Backend = "http"
				a.cfg.NER.URL = nerURL
			}

			svc, err := a.initializeServices(serviceSet{store: record})
			if err != nil {
				return err
			}
			defer svc.cleanup()

			ctx := cmd.Context()
			result, err := svc.engine.Redact(ctx, text, p)
			if err != nil {
				return fmt.Errorf("redaction failed: %w", err)
			}
			a.log.LogRedactionSummary("Text redacted", result.Counts(), len(result.Audit))

			jobID := ""
			if svc.store != nil {
				source := "cli:stdin"
				if len(args) == 1 {
					source = "cli:" + args[0]
				}
				rec := store.NewJobRecord(source, p, result)
				if err := svc.store.Insert(ctx, rec); err != nil {
					a.log.Warn("Failed to store audit trail", zap.Error(err))
				} else {
					jobID = rec.Job.ID
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, redactOutput{
					JobID:              jobID,
					RedactedText:       result.RedactedText,
					Audit:              result.Audit,
					Counts:             result.Counts(),
					NoSensitiveContent: result.NoSensitiveContent(),
					Policy:             p,
				})
			}
			_, err = io.WriteString(out, result.RedactedText)
			return err
		},
	}

	policy.register(cmd)
	cmd.Flags().StringVar(&nerURL, "ner-url", "", "NER sidecar URL; enables entity recognition")
	cmd.Flags().BoolVar(&record, "record", false, "store the audit trail when the audit store is enabled")
	return cmd
}

type redactOutput struct {
	JobID              string                 `json:"job_id,omitempty"`
	RedactedText       string                 `json:"redacted_text"`
	Audit              []redaction.AuditEntry `json:"audit"`
	Counts             map[string]int         `json:"counts"`
	NoSensitiveContent bool                   `json:"no_sensitive_content"`
	Policy             redaction.Policy       `json:"policy"`
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
