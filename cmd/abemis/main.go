// Package main provides the abemis binary entry point: the project portal
// API server plus a few maintenance commands for the form builder.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/spf13/cobra"

	"github.com/abemis/portal/config"
	"github.com/abemis/portal/formbuilder"
	eventstream "github.com/abemis/portal/processor/event-stream"
	formbuilderapi "github.com/abemis/portal/processor/formbuilder-api"
	locationapi "github.com/abemis/portal/processor/location-api"
	projectapi "github.com/abemis/portal/processor/project-api"
	projectmonitor "github.com/abemis/portal/processor/project-monitor"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "abemis"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags every command reads.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Agricultural project portal server",
		Long: `abemis serves the project portal API: the registration form builder,
the PSGC location cascade, project registration wizards and the project
lifecycle stepper.

Configuration is read from ~/.config/abemis/config.yaml, then abemis.yaml in
the current or a parent directory, then ABEMIS_* environment variables
(a .env file is loaded first). --config replaces the file lookup.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the API server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), flags)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
		componentsCmd(),
		formbuilderCmd(flags),
	)

	return cmd
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(flags *globalFlags, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader(logger)
	if flags.configPath != "" {
		return loader.LoadFile(flags.configPath)
	}
	return loader.Load()
}

func runServe(ctx context.Context, flags *globalFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(flags.logLevel, os.Stderr)
	slog.SetDefault(logger)

	cfg, err := loadConfig(flags, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := app.Open(signalCtx); err != nil {
		return err
	}
	logger.Info("abemis ready", "version", Version, "storage", cfg.Storage.Backend)

	if err := app.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("abemis shutdown complete")
	return nil
}

// catalog collects component registrations for listing.
type catalog struct {
	configs []component.RegistrationConfig
}

func (c *catalog) RegisterWithConfig(cfg component.RegistrationConfig) error {
	c.configs = append(c.configs, cfg)
	return nil
}

// registerAll registers every portal component with r.
func registerAll(r *catalog) error {
	registrations := []struct {
		name string
		fn   func(*catalog) error
	}{
		{"formbuilder-api", func(c *catalog) error { return formbuilderapi.Register(c) }},
		{"location-api", func(c *catalog) error { return locationapi.Register(c) }},
		{"project-api", func(c *catalog) error { return projectapi.Register(c) }},
		{"project-monitor", func(c *catalog) error { return projectmonitor.Register(c) }},
		{"event-stream", func(c *catalog) error { return eventstream.Register(c) }},
	}
	for _, reg := range registrations {
		if err := reg.fn(r); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func componentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List the portal's components",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &catalog{}
			if err := registerAll(c); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPROTOCOL\tVERSION\tDESCRIPTION")
			for _, cfg := range c.configs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cfg.Name, cfg.Protocol, cfg.Version, cfg.Description)
			}
			return tw.Flush()
		},
	}
}

func formbuilderCmd(flags *globalFlags) *cobra.Command {
	var (
		stepID string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "formbuilder",
		Short: "Inspect and publish registration forms in the configured store",
	}

	// withRepo opens storage, runs fn, and closes everything again.
	withRepo := func(cmd *cobra.Command, fn func(ctx context.Context, repo *formbuilder.Repository) error) error {
		logger := newLogger(flags.logLevel, cmd.ErrOrStderr())
		cfg, err := loadConfig(flags, logger)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		app, err := NewApp(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
		defer cancel()
		if err := app.OpenStorage(ctx); err != nil {
			return err
		}
		return fn(ctx, app.repo)
	}

	show := &cobra.Command{
		Use:   "show <type-id>",
		Short: "Print a project type's registration steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, repo *formbuilder.Repository) error {
				pt, err := repo.LoadProjectType(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), pt)
				}
				return printProjectType(cmd.OutOrStdout(), pt)
			})
		},
	}

	show.Flags().BoolVar(&asJSON, "json", false, "Print the project type as JSON")

	publish := &cobra.Command{
		Use:   "publish <type-id>",
		Short: "Publish the current form as a new active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, repo *formbuilder.Repository) error {
				pt, err := repo.LoadProjectType(ctx, args[0])
				if err != nil {
					return err
				}
				scope := scopeFor(args[0], stepID)
				v, err := repo.Publish(ctx, pt, scope)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %s version %d (%d fields)\n", scope, v.Version, len(v.FormFields))
				return nil
			})
		},
	}
	publish.Flags().StringVar(&stepID, "step", "", "Publish one step instead of the whole registration form")

	versions := &cobra.Command{
		Use:   "versions <type-id>",
		Short: "List published versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, repo *formbuilder.Repository) error {
				history, err := repo.Versions(ctx, scopeFor(args[0], stepID))
				if err != nil {
					return err
				}
				return printVersions(cmd.OutOrStdout(), history)
			})
		},
	}
	versions.Flags().StringVar(&stepID, "step", "", "List one step's versions")

	cmd.AddCommand(show, publish, versions)
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func scopeFor(typeID, stepID string) formbuilder.Scope {
	if stepID != "" {
		return formbuilder.StepScope(typeID, stepID)
	}
	return formbuilder.RegistrationScope(typeID)
}

func printProjectType(w io.Writer, pt *formbuilder.ProjectType) error {
	fmt.Fprintf(w, "%s (%s)\n", pt.Name, pt.ID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, step := range pt.RegistrationSteps {
		fmt.Fprintf(tw, "%d. %s\t%s\t%d fields\n", step.Order+1, step.Name, step.ID, len(step.Fields))
		for _, f := range step.Fields {
			req := ""
			if f.Required {
				req = "required"
			}
			fmt.Fprintf(tw, "   - %s\t%s\t%s\n", f.Label, f.Type, req)
		}
	}
	return tw.Flush()
}

func printVersions(w io.Writer, history formbuilder.VersionHistory) error {
	if len(history) == 0 {
		fmt.Fprintln(w, "no versions published")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tACTIVE\tFIELDS\tPUBLISHED")
	for _, v := range history {
		active := ""
		if v.IsActive {
			active = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", v.Version, active, len(v.FormFields), v.PublishedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// writeJSON pretty-prints v.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
