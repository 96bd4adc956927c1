package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raaihank/scan-redactor/internal/export"
	"github.com/raaihank/scan-redactor/internal/pipeline"
	"github.com/raaihank/scan-redactor/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDocumentCommand(a *app) *cobra.Command {
	var (
		policy    policyFlags
		outputDir string
		formats   []string
	)

	cmd := &cobra.Command{
		Use:   "document <input.pdf|png|jpg>",
		Short: "OCR and redact a scanned document",
		Long: `Document extracts the page images of a scanned PDF (or reads a single
PNG or JPEG page), recognizes the text with Tesseract, redacts it and writes
<name>.redacted.pdf and <name>.redacted.docx next to the input or into
--output-dir.

	Examples:
	  scan-redactor document intake.pdf
	  scan-redactor document --formats txt --mode aggressive --ocr-tolerance fax.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]

			p, err := policy.resolve(cmd, a.cfg.Redaction)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("formats") {
				formats = a.cfg.Export.Formats
			}
			outFormats, err := parseFormats(formats)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output-dir") && a.cfg.Export.OutputDir != "" && a.cfg.Export.OutputDir != "." {
				outputDir = a.cfg.Export.OutputDir
			}
			if outputDir == "" {
				outputDir = filepath.Dir(input)
			}

			file, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", input, err)
			}
			defer file.Close()

			svc, err := a.initializeServices(serviceSet{documents: true, store: true})
			if err != nil {
				return err
			}
			defer svc.cleanup()

			ctx := cmd.Context()
			res, err := svc.documents.Process(ctx, file, p, outFormats...)
			if err != nil {
				return err
			}

			written, err := writeOutputs(outputDir, input, res)
			if err != nil {
				return err
			}

			if svc.store != nil {
				if err := svc.store.Insert(ctx, store.NewJobRecord("cli:document:"+filepath.Base(input), p, res.Result)); err != nil {
					a.log.Warn("Failed to store audit trail", zap.Error(err))
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, map[string]any{
					"files": written,
					"stats": res.Stats,
					"audit": res.Result.Audit,
				})
			}
			fmt.Fprintf(out, "%s: %s\n", filepath.Base(input), res.Stats.Describe())
			for _, f := range written {
				fmt.Fprintf(out, "  wrote %s\n", f)
			}
			return nil
		},
	}

	policy.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for redacted files (default: next to the input)")
	cmd.Flags().StringSliceVarP(&formats, "formats", "f", nil, "output formats: pdf, docx, txt (default from config)")
	return cmd
}

func parseFormats(names []string) ([]export.Format, error) {
	if len(names) == 0 {
		return []export.Format{export.FormatPDF, export.FormatDOCX}, nil
	}
	formats := make([]export.Format, 0, len(names))
	for _, n := range names {
		f, err := export.ParseFormat(n)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// writeOutputs writes one <name>.redacted.<ext> file per rendered format.
func writeOutputs(dir, input string, res *pipeline.DocumentResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	var written []string
	for format, data := range res.Outputs {
		path := filepath.Join(dir, base+".redacted"+format.Extension())
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
