// Package main provides the continuity binary: a narrative consistency
// engine served over HTTP, with commands to validate and fold content locally.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/continuity/internal/config"
	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
	"github.com/dotcommander/continuity/internal/server"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "continuity"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// load reads configuration and installs the default logger.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger := observability.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, nil
}

// open loads configuration and wires an engine for one-shot commands.
func (g *globalFlags) open(cmd *cobra.Command) (*app, error) {
	cfg, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, slog.Default(), nil)
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Narrative consistency engine",
		Long: `Continuity validates new story content (scripts, casting, storyboards,
schedules, worldbuilding, outlines) against the accumulated state of a
narrative universe and proposes corrections for contradictions.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(
		serveCmd(g),
		validateCmd(g),
		applyCmd(g),
		correctCmd(g),
		listCmd(g),
		historyCmd(g),
		rollbackCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := slog.Default()

			shutdown, err := observability.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("tracing shutdown failed", "error", err)
				}
			}()

			metrics := observability.NewMetrics()
			a, err := newApp(cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer a.Close()

			if g.configPath != "" {
				go func() {
					err := config.Watch(ctx, g.configPath, logger, func(next *config.Config) {
						a.engine.SetPolicy(next.Policy())
					})
					if err != nil {
						logger.Warn("config watch stopped", "error", err)
					}
				}()
			}

			return server.New(a.engine, cfg.Server.Limits, a.obs).ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

type contentFlags struct {
	universe    string
	file        string
	tab         string
	contentType string
}

func (f *contentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.universe, "universe", "u", "", "Universe id")
	cmd.Flags().StringVarP(&f.file, "file", "f", "-", "Content envelope file ({tabType, contentType, content}); - for stdin")
	cmd.Flags().StringVar(&f.tab, "tab", "", "Tab type (overrides the file)")
	cmd.Flags().StringVar(&f.contentType, "type", "", "Content type (overrides the file)")
	_ = cmd.MarkFlagRequired("universe")
}

func validateCmd(g *globalFlags) *cobra.Command {
	var f contentFlags
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate content against a universe and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, env, err := readEnvelope(f.file, content.TabType(f.tab), f.contentType)
			if err != nil {
				return err
			}
			result, err := a.engine.ValidateContentConsistency(cmd.Context(), p, env.ContentType, f.universe, env.TabType)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if strict && !result.IsValid {
				return fmt.Errorf("content is inconsistent (score %.2f)", result.OverallScore)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the content is not valid")
	return cmd
}

func applyCmd(g *globalFlags) *cobra.Command {
	var f contentFlags
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Fold accepted content into a universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, env, err := readEnvelope(f.file, content.TabType(f.tab), f.contentType)
			if err != nil {
				return err
			}
			a.engine.UpdateUniverseWithContent(cmd.Context(), p, env.ContentType, f.universe, env.TabType)

			u, err := a.engine.Universe(cmd.Context(), f.universe)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "universe %s at revision %d\n", u.ID, u.Revision)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func correctCmd(g *globalFlags) *cobra.Command {
	var f contentFlags
	var resultPath string
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Apply the automatic corrections of a validation result to content",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, env, err := readEnvelope(f.file, content.TabType(f.tab), f.contentType)
			if err != nil {
				return err
			}
			data, err := readInput(resultPath)
			if err != nil {
				return err
			}
			var result narrative.ValidationResult
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("parsing validation result: %w", err)
			}

			corrected, err := a.engine.ApplyConsistencyCorrections(p, result.Corrections)
			if err != nil {
				return err
			}
			body, err := json.Marshal(corrected)
			if err != nil {
				return fmt.Errorf("encoding corrected content: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), content.Envelope{
				TabType:     corrected.TabType(),
				ContentType: env.ContentType,
				Content:     body,
			})
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Content envelope file")
	cmd.Flags().StringVar(&f.tab, "tab", "", "Tab type (overrides the file)")
	cmd.Flags().StringVarP(&resultPath, "result", "r", "-", "Validation result file; - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func listCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored universes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.engine.Universes(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func historyCmd(g *globalFlags) *cobra.Command {
	var universeID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored versions of a universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.engine.Versions(cmd.Context(), universeID, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, v := range versions {
				marker := " "
				if v.Active {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %s  rev %-4d %s\n", marker, v.ID, v.Revision, v.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&universeID, "universe", "u", "", "Universe id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum versions to list")
	_ = cmd.MarkFlagRequired("universe")
	return cmd
}

func rollbackCmd(g *globalFlags) *cobra.Command {
	var universeID, versionID string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore an earlier version of a universe as a new revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.engine.Rollback(cmd.Context(), universeID, versionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "universe %s restored from %s at revision %d\n", u.ID, versionID, u.Revision)
			return nil
		},
	}
	cmd.Flags().StringVarP(&universeID, "universe", "u", "", "Universe id")
	cmd.Flags().StringVar(&versionID, "version", "", "Version id to restore")
	_ = cmd.MarkFlagRequired("universe")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}
