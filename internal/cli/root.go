// Package cli implements the scan-redactor command line.
package cli

import (
	"fmt"
	"strings"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags at release time.
var (
	Version = "0.1.0"
	Commit  = "dev"
	Date    = "unknown"
)

// app carries state shared by every subcommand once the root command has
// loaded configuration.
type app struct {
	configPath string
	logLevel   string
	jsonOutput bool

	cfg *config.Config
	log *logger.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "scan-redactor",
		Short: "Redact sensitive data from scanned documents and text",
		Long: `scan-redactor finds and masks social security numbers, card numbers,
addresses, postal codes and named entities in text, scanned PDFs and
tabular datasets.

Configuration is read from config.yaml in ., ./configs,
/etc/scan-redactor/ or $HOME/.scan-redactor/, and from REDACTOR_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.jsonOutput, "json", "j", false, "print machine-readable JSON")

	root.AddCommand(
		newRedactCommand(a),
		newDocumentCommand(a),
		newServeCommand(a),
		newHealthCommand(a),
		newBatchCommand(a),
		newAuditCommand(a),
		newCacheCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(a.logLevel)
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	logCfg := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Logging.File.Enabled {
		logCfg.File = &logger.FileConfig{Enabled: true, Path: cfg.Logging.File.Path}
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.log = log
	return nil
}

// policyFlags are the per-run overrides of the configured policy.
type policyFlags struct {
	mode         string
	categories   []string
	ocrTolerance bool
}

func (p *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.mode, "mode", "m", "", "conservative or aggressive (default from config)")
	cmd.Flags().StringSliceVar(&p.categories, "categories", nil, "categories to redact, e.g. ssn,credit_card or all")
	cmd.Flags().BoolVar(&p.ocrTolerance, "ocr-tolerance", false, "also match digit runs with OCR confusions (aggressive mode)")
}

// resolve applies the flags the user set on top of the configured policy.
func (p *policyFlags) resolve(cmd *cobra.Command, cfg config.RedactionConfig) (redaction.Policy, error) {
	if cmd.Flags().Changed("mode") {
		cfg.Mode = p.mode
	}
	if cmd.Flags().Changed("categories") {
		cfg.Categories = p.categories
	}
	if cmd.Flags().Changed("ocr-tolerance") {
		cfg.OCRTolerance = p.ocrTolerance
	}
	return redaction.PolicyFromConfig(cfg)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": Version,
					"commit":  Commit,
					"date":    Date,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scan-redactor %s (commit: %s, built: %s)\n", Version, Commit, Date)
			return nil
		},
	}
}
