// Package main provides the CLI entrypoint for wordflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/verte-zerg/wordflow/internal/config"
	"github.com/verte-zerg/wordflow/internal/editor"
	"github.com/verte-zerg/wordflow/internal/metrics"
	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/note"
	"github.com/verte-zerg/wordflow/internal/recorder"
	"github.com/verte-zerg/wordflow/internal/stats"
	"github.com/verte-zerg/wordflow/internal/statsui"
	"github.com/verte-zerg/wordflow/internal/store"
	"github.com/verte-zerg/wordflow/internal/tracker"
	"github.com/verte-zerg/wordflow/internal/tui"
)

const defaultStatsWindow = 7

var (
	configPath string
	debugLog   bool

	writeRoot       string
	writeThreshold  string
	writeUseSeconds bool
	writeNoStore    bool
	writeMetrics    string

	statsPath   string
	statsSince  string
	statsLast   int
	statsWindow int
	statsPlain  bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wordflow [file]",
		Short:         "Writing pad that tracks how much you actually write",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runWriteCmd,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "log debug messages")

	addWriteFlags(rootCmd)
	rootCmd.AddCommand(newWriteCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Open a file in the writing pad",
		Args:  cobra.ExactArgs(1),
		RunE:  runWriteCmd,
	}
	addWriteFlags(cmd)
	return cmd
}

func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&writeRoot, "root", "", "folder periodic notes are written under (default: current directory)")
	cmd.Flags().StringVar(&writeThreshold, "threshold", string(model.ThresholdEdits), "record threshold: e, t, ent, eot or n")
	cmd.Flags().BoolVar(&writeUseSeconds, "use-seconds", false, "refresh timers every second")
	cmd.Flags().BoolVar(&writeNoStore, "no-store", false, "do not record into the database")
	cmd.Flags().StringVar(&writeMetrics, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func runWriteCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyWriteFlags(cmd, &fileCfg)
	settings, err := config.Resolve(fileCfg)
	if err != nil {
		return err
	}

	logger, closeLog, err := openLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	root := writeRoot
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	buf, err := editor.Open(path, editor.Options{GroupDelay: groupDelay(settings.Debounce)})
	if err != nil {
		return err
	}
	defer buf.Close()

	var st *store.Store
	if settings.StoreEnabled {
		if st, err = store.Open(settings.StorePath); err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
	}

	met := metrics.New()
	notifier := tui.NewNotifier()
	targets, err := buildTargets(root, settings, st, logger)
	if err != nil {
		return err
	}

	mgr := tracker.NewManager(tracker.ManagerOptions{
		Tracker:    trackerOptions(settings, notifier, logger, met),
		RecordOn:   settings.RecordOn,
		AutoRecord: settings.AutoRecord,
		Logger:     logger,
	})
	sched := recorder.New(mgr, recorder.Options{
		Threshold:   settings.Threshold,
		MinEditTime: settings.MinEditTime,
		Throttle:    settings.Throttle,
		Notifier:    notifier,
		Logger:      logger,
		Metrics:     met,
	}, targets...)
	mgr.SetRecorder(sched)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	// Metrics and config reload are optional; their failure must not stop
	// periodic recording.
	if settings.MetricsAddr != "" {
		g.Go(func() error {
			if err := met.Serve(gctx, settings.MetricsAddr); err != nil {
				logger.Error("metrics endpoint stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(fc config.FileConfig, err error) {
			reloadConfig(cmd, fc, err, root, st, sched, notifier, logger)
		})
		if err != nil {
			logger.Warn("config reload disabled", "err", err)
		}
		return nil
	})

	pad := tui.NewModel(ctx, buf, tui.Options{
		Manager:      mgr,
		Recorder:     sched,
		Notifier:     notifier,
		EditTemplate: settings.EditTemplate,
		ReadTemplate: settings.ReadTemplate,
		Render:       note.RenderOptions{Seconds: settings.UseSeconds},
		Logger:       logger,
	})
	program := tea.NewProgram(pad, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := program.Run()
	pad.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logErrf("failed to record statistics: %v\n", err)
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("background task failed", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run writing pad: %w", runErr)
	}
	return nil
}

// groupDelay keeps history grouping shorter than the reconcile debounce, so
// an entry is never extended after it was counted.
func groupDelay(debounce time.Duration) time.Duration {
	if d := debounce / 2; d < editor.DefaultGroupDelay {
		return d
	}
	return editor.DefaultGroupDelay
}

// applyWriteFlags lets explicitly set flags override the config file.
func applyWriteFlags(cmd *cobra.Command, fc *config.FileConfig) {
	applyStringFlag(cmd, "threshold", writeThreshold, &fc.Recording.Threshold)
	applyBoolFlag(cmd, "use-seconds", writeUseSeconds, &fc.Tracking.UseSeconds)
	applyStringFlag(cmd, "metrics-addr", writeMetrics, &fc.Metrics.Addr)
	applyBoolFlag(cmd, "no-store", !writeNoStore, &fc.Store.Enabled)
}

func trackerOptions(s config.Settings, n *tui.Notifier, logger *slog.Logger, met *metrics.Metrics) tracker.Options {
	opts := tracker.Options{
		Debounce:    s.Debounce,
		ClearMargin: s.ClearMargin,
		Cadence:     s.Cadence(),
		Idle:        s.Idle,
		ResetGrace:  s.ResetGrace,
		Logger:      logger,
		Metrics:     met,
		OnIdle: func(path string, _ model.ViewMode) {
			n.Notify("paused after inactivity: "+filepath.Base(path), 0)
		},
	}
	if s.AutoResume {
		opts.OnResume = func(string, model.ViewMode) {
			n.Notify("tracking resumed", recorder.NoticeTTL)
		}
	}
	return opts
}

// buildTargets returns the store (when open) followed by one target per
// configured note recorder.
func buildTargets(root string, s config.Settings, st *store.Store, logger *slog.Logger) ([]recorder.Target, error) {
	targets := make([]recorder.Target, 0, len(s.Recorders)+1)
	if st != nil {
		targets = append(targets, st)
	}
	for _, cfg := range s.Recorders {
		rec, err := note.New(root, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("recorder %s: %w", cfg.ID, err)
		}
		targets = append(targets, rec)
	}
	return targets, nil
}

// reloadConfig applies recorder and threshold changes from an edited config
// file. Tracking settings take effect on the next start.
func reloadConfig(cmd *cobra.Command, fc config.FileConfig, err error, root string, st *store.Store, sched *recorder.Scheduler, n *tui.Notifier, logger *slog.Logger) {
	if err != nil {
		logger.Warn("config reload failed", "err", err)
		n.Notify("config reload failed", recorder.NoticeTTL)
		return
	}
	applyWriteFlags(cmd, &fc)
	settings, err := config.Resolve(fc)
	if err != nil {
		logger.Warn("config rejected", "err", err)
		n.Notify(err.Error(), recorder.NoticeTTL)
		return
	}
	targets, err := buildTargets(root, settings, st, logger)
	if err != nil {
		logger.Warn("config rejected", "err", err)
		n.Notify(err.Error(), recorder.NoticeTTL)
		return
	}
	sched.SetTargets(targets)
	sched.SetPolicy(settings.Threshold, settings.MinEditTime)
	logger.Info("config reloaded", "targets", len(targets))
	n.Notify("config reloaded", recorder.NoticeTTL)
}

// openLogger writes structured logs to the state directory, since the
// terminal belongs to the TUI.
func openLogger() (*slog.Logger, func(), error) {
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log: %w", err)
	}
	level := slog.LevelInfo
	if debugLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() {
		if cerr := f.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}, nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded writing stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsPath, "path", "", "only records of this note")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N records")
	cmd.Flags().IntVar(&statsWindow, "window", defaultStatsWindow, "moving average window in days")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print the report instead of opening the stats TUI")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	if statsWindow < 1 {
		return fmt.Errorf("--window must be >= 1")
	}

	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := config.Resolve(fileCfg)
	if err != nil {
		return err
	}
	st, err := store.Open(settings.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	cfg := model.StatsConfig{
		RecordFilter: model.RecordFilter{Path: statsPath, Since: sinceTime, Last: statsLast},
		Window:       statsWindow,
	}
	if statsPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		report, err := stats.BuildReport(cmd.Context(), st, cfg)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		return stats.Render(cmd.OutOrStdout(), report, 0)
	}

	program := tea.NewProgram(statsui.NewModel(st, cfg), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editorCmd := strings.TrimSpace(os.Getenv("EDITOR"))
	if editorCmd == "" {
		editorCmd = "vi"
	}
	parts := strings.Fields(editorCmd)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringFlag(cmd *cobra.Command, name, value string, target **string) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = &value
}

func applyBoolFlag(cmd *cobra.Command, name string, value bool, target **bool) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = &value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
