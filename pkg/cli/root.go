// Package cli implements the isi admin command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"isi-import/internal/app"
	"isi-import/internal/config"
	"isi-import/internal/db"
	"isi-import/internal/domain"
	"isi-import/internal/fileref"
	"isi-import/internal/mapping"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd, rt := newRoot()
	err := rootCmd.Execute()
	if cerr := rt.close(); err == nil {
		err = cerr
	}
	if err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{
				"error": err.Error(),
				"kind":  errorKind(err),
			}
			_ = PrintJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorKind names the domain error class for machine-readable output.
func errorKind(err error) string {
	var (
		notFound   *domain.NotFoundError
		sheet      *domain.SheetNotFoundError
		header     *domain.HeaderNotFoundError
		validation *domain.ValidationError
		format     *domain.UnsupportedFormatError
		unknown    *domain.UnknownDestinationError
		duplicate  *domain.DuplicateDestinationError
		dangling   *domain.DanglingReferenceError
		self       *domain.SelfReferenceError
		conflict   *domain.ConflictError
		notLocal   *domain.FileNotLocalError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &sheet), errors.As(err, &header):
		return "not_found"
	case errors.As(err, &validation), errors.As(err, &format), errors.As(err, &unknown),
		errors.As(err, &duplicate), errors.As(err, &dangling), errors.As(err, &self):
		return "validation"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &notLocal):
		return "file_not_local"
	default:
		return "error"
	}
}

// runtime holds the lazily opened resources shared by all commands of one
// invocation.
type runtime struct {
	envFile string
	metaDB  string
	output  string
	as      string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
	store  *db.Metastore
	app    *app.App
}

// setup loads configuration and the logger. Diagnostics go to stderr.
func (rt *runtime) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(rt.envFile); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if rt.metaDB != "" {
		cfg.MetaDBPath = rt.metaDB
	}
	rt.cfg = cfg

	level := cfg.SlogLevel()
	if rt.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var w io.Writer = cmd.ErrOrStderr()
	if cfg.IsProduction() {
		rt.logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		rt.logger = slog.New(slog.NewTextHandler(w, opts))
	}
	for _, warning := range cfg.Warnings {
		rt.logger.Warn(warning)
	}
	return nil
}

// context attaches the acting operator to the command context.
func (rt *runtime) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	name := rt.as
	if name == "" {
		name = os.Getenv("USER")
	}
	if name != "" {
		ctx = domain.WithPrincipal(ctx, domain.ContextPrincipal{Name: name})
	}
	return ctx
}

// openApp opens the metastore and wires the application on first use.
func (rt *runtime) openApp(ctx context.Context) (*app.App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	store, err := db.OpenMetastore(rt.cfg.MetaDBPath)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	a, err := app.New(ctx, app.Deps{Cfg: rt.cfg, Store: store, Logger: rt.logger})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rt.store, rt.app = store, a
	return a, nil
}

// catalog returns a file catalog without touching the metastore.
func (rt *runtime) catalog(ctx context.Context) (*mapping.Catalog, error) {
	if rt.app != nil {
		return rt.app.Services.Catalog, nil
	}
	files, err := fileref.NewFromConfig(ctx, rt.cfg, rt.logger.With("component", "fileref"))
	if err != nil {
		return nil, err
	}
	return mapping.NewCatalog(files, nil), nil
}

func (rt *runtime) close() error {
	if rt.store == nil {
		return nil
	}
	err := rt.store.Close()
	rt.store, rt.app = nil, nil
	return err
}

func newRootCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

// newRoot builds the command tree and returns the runtime so callers can
// release it when a command fails before PersistentPostRunE.
func newRoot() (*cobra.Command, *runtime) {
	rt := &runtime{}
	var profile string

	rootCmd := &cobra.Command{
		Use:           "isi",
		Short:         "Spreadsheet import administration",
		Long:          "Compiles spreadsheet import requests into executable migration jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Profile values apply only where no flag was given.
			cfg, err := LoadUserConfig()
			if err != nil {
				// Config file is optional
				cfg = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
			}
			p, err := cfg.ActiveProfile(profile)
			if err != nil {
				return err
			}
			flags := cmd.Root().PersistentFlags()
			if !flags.Changed("env-file") && p.EnvFile != "" {
				rt.envFile = p.EnvFile
			}
			if !flags.Changed("meta-db") && p.MetaDB != "" {
				rt.metaDB = p.MetaDB
			}
			if !flags.Changed("as") && p.As != "" {
				rt.as = p.As
			}
			if !flags.Changed("output") {
				v := os.Getenv("ISI_OUTPUT")
				if v == "" {
					v = p.Output
				}
				if v != "" {
					_ = flags.Set("output", v)
				}
			}
			if err := validateOutputFormat(rt.output); err != nil {
				return err
			}
			if skipRuntime(cmd) {
				return nil
			}
			return rt.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return rt.close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rt.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVarP(&profile, "profile", "p", "", "Config profile to use")
	pf.StringVar(&rt.envFile, "env-file", ".env", "Environment file loaded before configuration")
	pf.StringVar(&rt.metaDB, "meta-db", "", "Metastore path (overrides META_DB_PATH)")
	pf.StringVar(&rt.as, "as", "", "Operator name recorded as request owner (default $USER)")
	pf.BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddGroup(commandGroups()...)
	grouped := func(id string, cmds ...*cobra.Command) {
		for _, c := range cmds {
			c.GroupID = id
			rootCmd.AddCommand(c)
		}
	}
	grouped(groupFile, newSheetsCmd(rt), newHeaderCmd(rt), newPreviewCmd(rt))
	grouped(groupRequest, newRequestCmd(rt), newSourcesCmd(rt))
	grouped(groupTemplate, newTemplateCmd(rt))
	grouped(groupJobs, newJobsCmd(rt), newResyncCmd(rt))
	grouped(groupCLI, newVersionCmd(), newConfigCmd(), newCommandsCmd(), newCompletionCmd())
	rootCmd.SetHelpCommandGroupID(groupCLI)

	return rootCmd, rt
}

// skipRuntime reports whether cmd works without loading configuration.
func skipRuntime(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "config", "commands", "completion", "help":
			return true
		}
	}
	return false
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
