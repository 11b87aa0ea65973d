package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/greg-hellings/portal/pkg/assessment"
	"github.com/greg-hellings/portal/pkg/backend"
	"github.com/greg-hellings/portal/pkg/config"
	"github.com/greg-hellings/portal/pkg/export"
	"github.com/greg-hellings/portal/pkg/ingest"
	"github.com/greg-hellings/portal/pkg/repository"
	"github.com/greg-hellings/portal/pkg/state"
	"github.com/greg-hellings/portal/pkg/view"
	consolefmt "github.com/greg-hellings/portal/pkg/view/format"
	"github.com/greg-hellings/portal/pkg/web"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFile string
	verbose    bool
	debug      bool
}

// assess command flags
type assessFlags struct {
	repo       string
	service    string
	outputFile string
	layout     string
	format     string
	noColor    bool
}

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Unified Portal Onboarding",
		Long: strings.TrimSpace(`
Unified Portal Onboarding - repository intake for the assessment service

Upload a CSV of repositories and access tokens, ask the assessment service to
clone them, generate per-service assessments, browse them and export the
selected service to an Excel workbook.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging(flags)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Configuration file (YAML or TOML)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.Version = version

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newSampleCmd())
	cmd.AddCommand(newImportCmd(flags))
	cmd.AddCommand(newAssessCmd(flags))
	cmd.AddCommand(newVerifyCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initLogging(flags *rootFlags) {
	var level slog.Level
	switch {
	case flags.debug:
		level = slog.LevelDebug
	case flags.verbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	timeout, err := cfg.BackendTimeout()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(backend.Config{BaseURL: cfg.Backend.BaseURL, Timeout: timeout})
}

// newVersionCmd prints version info.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Portal version: %s\n", version)
		},
	}
}

// newServeCmd runs the web portal.
func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the onboarding page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}

			ctrl := state.New(client, state.Options{
				AutoSelectFirstService: cfg.AutoSelect(),
				Layout:                 cfg.ExportLayout(),
			})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("Starting portal",
				"addr", cfg.Server.Addr,
				"backend", cfg.Backend.BaseURL,
				"layout", cfg.Export.Layout)
			return web.NewServer(ctrl).ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return c
}

// newSampleCmd writes the sample CSV.
func newSampleCmd() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "sample",
		Short: "Write the sample CSV (" + ingest.SampleFilename + ")",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(ingest.SampleCSV())
				return err
			}
			if err := os.WriteFile(out, ingest.SampleCSV(), 0o644); err != nil {
				return fmt.Errorf("failed to write sample CSV: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample written to %s\n", out)
			return nil
		},
	}
	c.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	return c
}

// newImportCmd sends one clone request per valid CSV row.
func newImportCmd(flags *rootFlags) *cobra.Command {
	var noColor bool
	c := &cobra.Command{
		Use:   "import <csv-file>",
		Short: "Ask the assessment service to clone every repository in a CSV",
		Long: strings.TrimSpace(`
Read a CSV with repo_url and access_token columns and send one clone request
per row, one after another. Rows missing either value are skipped. A failed
row does not stop the import.

Examples:
  portal import repos.csv
  portal import repos.csv --config portal.yaml`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), client, args[0], cmd.OutOrStdout(), noColor)
		},
	}
	c.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors")
	return c
}

func runImport(ctx context.Context, cloner ingest.Cloner, path string, w io.Writer, noColor bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := ingest.ParseRows(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	for _, c := range []*color.Color{green, red, yellow} {
		if noColor {
			c.DisableColor()
		}
	}

	fmt.Fprintln(w, state.StatusProcessing)
	sum, err := ingest.NewImporter(cloner).Run(ctx, rows, func(st ingest.Status) {
		switch st.Outcome {
		case ingest.OutcomeCloned:
			_, _ = green.Fprintln(w, st.Line())
		case ingest.OutcomeFailed:
			_, _ = red.Fprintln(w, st.Line())
		default:
			_, _ = yellow.Fprintln(w, st.Line())
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "File %s imported successfully!\n", filepath.Base(path))
	slog.Info("Import complete",
		"cloned", sum.Cloned, "failed", sum.Failed, "errors", sum.Errored, "skipped", sum.Skipped)
	return nil
}

// newAssessCmd uploads a CSV for assessment and renders or exports the result.
func newAssessCmd(flags *rootFlags) *cobra.Command {
	af := &assessFlags{}
	c := &cobra.Command{
		Use:   "assess <csv-file>",
		Short: "Generate assessment data for the repositories in a CSV",
		Long: strings.TrimSpace(`
Upload a CSV to the assessment service and show the parameter table of one
service. Without --repo/--service the first repository and its first service
are shown.

Formats:
  console (default) - adaptive terminal table
  json              - the full assessment result set

Examples:
  portal assess repos.csv
  portal assess repos.csv --repo https://github.com/org/shop --service checkout
  portal assess repos.csv --out assessment_data.xlsx --layout basic
  portal assess repos.csv --format json`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			return runAssess(cmd.Context(), client, cfg, af, args[0], cmd.OutOrStdout())
		},
	}

	c.Flags().StringVar(&af.repo, "repo", "", "Repository URL to show (default: first)")
	c.Flags().StringVar(&af.service, "service", "", "Service to show (default: first of the repository)")
	c.Flags().StringVarP(&af.outputFile, "out", "o", "", "Also export the selection to this xlsx file")
	c.Flags().StringVar(&af.layout, "layout", "", "Workbook layout: extended|basic (default from config)")
	c.Flags().StringVarP(&af.format, "format", "f", "console", "Output format: console|json")
	c.Flags().BoolVar(&af.noColor, "no-color", false, "Disable ANSI colors (console format)")
	return c
}

// assessor is the part of the backend client the assess command uses.
type assessor interface {
	Assess(ctx context.Context, filename string, content []byte) (assessment.Set, error)
}

func runAssess(ctx context.Context, client assessor, cfg *config.Config, af *assessFlags, path string, w io.Writer) error {
	start := time.Now()
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read CSV: %w", err)
	}

	set, err := client.Assess(ctx, filepath.Base(path), content)
	if err != nil {
		return fmt.Errorf("failed to generate assessment: %w", err)
	}

	repoURL, service, err := pickSelection(set, af.repo, af.service)
	if err != nil {
		return err
	}

	switch strings.ToLower(af.format) {
	case "console":
		formatter := consolefmt.NewConsoleFormatter()
		formatter.EnableColors = !af.noColor
		if err := formatter.RenderTable(view.Derive(set, repoURL, service, view.PageRules), w); err != nil {
			return fmt.Errorf("failed to render console output: %w", err)
		}
	case "json":
		details, err := set.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		data := append([]byte(`{"`+assessment.ResultsField+`":`), details...)
		data = append(data, '}')
		_, _ = w.Write(pretty.Pretty(data))
	default:
		return fmt.Errorf("unsupported format: %s", af.format)
	}

	if af.outputFile != "" {
		layout := cfg.ExportLayout()
		if af.layout != "" {
			if layout, err = export.ParseLayout(af.layout); err != nil {
				return err
			}
		}
		if err := writeWorkbook(set, repoURL, service, layout, af.outputFile); err != nil {
			return err
		}
		fmt.Fprintf(w, "Workbook written to %s\n", af.outputFile)
	}

	slog.Info("Assessment complete",
		"repositories", len(set),
		"repoUrl", repoURL,
		"service", service,
		"duration", time.Since(start).String())
	return nil
}

// pickSelection resolves the requested repository and service, defaulting to
// the first of each.
func pickSelection(set assessment.Set, repoURL, service string) (string, string, error) {
	if len(set) == 0 {
		return "", "", assessment.ErrNoResults
	}
	if repoURL == "" {
		repoURL = set[0].RepoURL
	}
	repo := set.Find(repoURL)
	if repo == nil {
		return "", "", fmt.Errorf("repository %s not found in assessment data (available: %s)",
			repoURL, strings.Join(set.RepoURLs(), ", "))
	}
	if service == "" {
		if len(repo.Services) == 0 {
			return "", "", fmt.Errorf("repository %s has no services", repoURL)
		}
		service = repo.Services[0].Name
	}
	if repo.Service(service) == nil {
		return "", "", fmt.Errorf("service %s not found in %s (available: %s)",
			service, repoURL, strings.Join(repo.ServiceNames(), ", "))
	}
	return repoURL, service, nil
}

func writeWorkbook(set assessment.Set, repoURL, service string, layout export.Layout, path string) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return export.Write(f, set, repoURL, service, layout)
}

// newVerifyCmd checks each CSV row against its provider API.
func newVerifyCmd(flags *rootFlags) *cobra.Command {
	var (
		noColor     bool
		failOnError bool
		jsonOut     bool
	)
	c := &cobra.Command{
		Use:   "verify <csv-file>",
		Short: "Check that every repository in a CSV is reachable with its token",
		Long: strings.TrimSpace(`
Resolve each valid CSV row on GitHub or GitLab with the row's access token and
report the repository's full name and default branch. Nothing is sent to the
assessment service.

Examples:
  portal verify repos.csv
  portal verify repos.csv --fail-on-error`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			factory := repository.NewFactory(repository.FactoryConfig{
				GitHubBaseURL: cfg.Providers.GitHubBaseURL,
				GitLabBaseURL: cfg.Providers.GitLabBaseURL,
				GitLabHosts:   cfg.Providers.GitLabHosts,
			})
			results, err := runVerify(cmd.Context(), factory, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				if err := renderVerifyJSON(results, w); err != nil {
					return err
				}
			} else {
				formatter := consolefmt.NewConsoleFormatter()
				formatter.EnableColors = !noColor
				if err := formatter.RenderVerifications(results, w); err != nil {
					return fmt.Errorf("failed to render console output: %w", err)
				}
			}

			if failOnError {
				for _, r := range results {
					if !r.OK() {
						return errors.New("one or more repositories failed verification (fail-on-error enabled)")
					}
				}
			}
			return nil
		},
	}
	c.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors")
	c.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit with non-zero status if any repository failed")
	c.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return c
}

func runVerify(ctx context.Context, resolver ingest.Resolver, path string) ([]ingest.Verification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := ingest.ParseRows(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return ingest.Verify(ctx, rows, resolver)
}

// verifyJSON is the structured shape of one verify result.
type verifyJSON struct {
	Line          int    `json:"line"`
	RepoURL       string `json:"repoUrl"`
	Provider      string `json:"provider,omitempty"`
	FullName      string `json:"fullName,omitempty"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
	Private       bool   `json:"private"`
	Error         string `json:"error,omitempty"`
}

func renderVerifyJSON(results []ingest.Verification, w io.Writer) error {
	out := make([]verifyJSON, 0, len(results))
	for _, r := range results {
		item := verifyJSON{Line: r.Row.Line, RepoURL: r.Row.RepoURL, Provider: string(r.Ref.Provider)}
		if r.Info != nil {
			item.FullName = r.Info.FullName
			item.DefaultBranch = r.Info.DefaultBranch
			item.Private = r.Info.Private
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		out = append(out, item)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	return nil
}
