// Package main is the CLI entry point for ringlightd.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ringlight/ringlightd/internal/config"
	"github.com/ringlight/ringlightd/internal/daemon"
	"github.com/ringlight/ringlightd/internal/domain"
	"github.com/ringlight/ringlightd/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "1.0.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ringlightd",
	Short: "Activity monitor that lights the screen when the webcam is in use",
	Long: `ringlightd watches for face-recognition processes (like howdy) or any
camera consumer and supervises ringlight-overlay children in response.

Modes:
  process  netlink-based exec/exit events, requires CAP_NET_ADMIN
  camera   poll for any camera activity
  hybrid   events when available, bounded polling otherwise`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMonitor,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent overlay activations",
	Long:  `Lists recent activation sessions from the history database.`,
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	flagConfig     string
	flagMode       string
	flagDevice     string
	flagProcs      []string
	flagInterval   int
	flagColor      string
	flagBrightness int
	flagWidth      int
	flagFullscreen bool
	flagScreens    string
	flagOverlayBin string
	flagHistoryDB  string
	flagVerbose    bool
	flagQuiet      bool
	flagHistoryN   int
	jsonOutput     bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", config.DefaultPath(), "Config file path")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Errors only")

	f := rootCmd.Flags()
	f.StringVarP(&flagMode, "mode", "m", "", "Detection mode: process|camera|hybrid")
	f.StringVarP(&flagDevice, "device", "d", "", "Video device path")
	f.StringArrayVarP(&flagProcs, "proc", "p", nil, "Process to watch (repeatable)")
	f.IntVarP(&flagInterval, "interval", "i", 0, "Poll interval in milliseconds")
	f.StringVar(&flagColor, "color", "", "Overlay color (hex RGB)")
	f.IntVar(&flagBrightness, "brightness", 0, "Overlay brightness (1-100)")
	f.IntVar(&flagWidth, "width", 0, "Overlay border width in pixels")
	f.BoolVar(&flagFullscreen, "fullscreen", false, "Full-screen overlay")
	f.StringVar(&flagScreens, "screens", "", "Comma-separated screen selectors")
	f.StringVar(&flagOverlayBin, "overlay-bin", "", "Overlay executable")
	f.StringVar(&flagHistoryDB, "history-db", "", "Session history database path")

	historyCmd.Flags().IntVarP(&flagHistoryN, "count", "n", 20, "Number of sessions to show")
	historyCmd.Flags().StringVar(&flagHistoryDB, "history-db", "", "Session history database path")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies CLI overrides. Flags that
// were not set on the command line leave config-file values intact.
func loadConfig(cmd *cobra.Command) (domain.MonitorConfig, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", flagConfig, err)
	}

	f := cmd.Flags()
	if f.Changed("mode") {
		mode, err := domain.ParseMode(flagMode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if f.Changed("device") {
		cfg.VideoDevice = flagDevice
	}
	if f.Changed("proc") {
		list := make(domain.WatchList, 0, len(flagProcs))
		for _, p := range flagProcs {
			list = append(list, domain.WatchPattern(p))
		}
		cfg.WatchProcesses = list
	}
	if f.Changed("interval") {
		cfg.PollInterval = config.ClampInterval(time.Duration(flagInterval) * time.Millisecond)
	}
	if f.Changed("color") {
		cfg.Overlay.Color = config.NormalizeColor(flagColor)
	}
	if f.Changed("brightness") {
		cfg.Overlay.Brightness = config.ClampBrightness(flagBrightness)
	}
	if f.Changed("width") {
		cfg.Overlay.Width = config.ClampWidth(flagWidth)
	}
	if f.Changed("fullscreen") {
		cfg.Overlay.Fullscreen = flagFullscreen
	}
	if f.Changed("screens") {
		cfg.Screens = config.SplitList(flagScreens)
	}
	if f.Changed("overlay-bin") {
		cfg.OverlayBin = flagOverlayBin
	}
	if f.Changed("history-db") {
		cfg.HistoryDB = flagHistoryDB
	}
	return cfg, nil
}

// arbitrateMode resolves the effective detection mode. connect opens the
// kernel event source; its failure is fatal in process mode and a logged
// fallback to poll-only in hybrid mode. Camera mode never connects.
func arbitrateMode(mode domain.Mode, connect func() (domain.EventSource, error), logger *zap.Logger) (domain.Mode, domain.EventSource, error) {
	if mode == domain.ModeCamera {
		return mode, nil, nil
	}

	source, err := connect()
	if err != nil {
		if mode == domain.ModeProcess {
			logger.Error("process mode requires the proc connector", zap.Error(err))
			logger.Error("grant the capability with: sudo setcap cap_net_admin+ep $(command -v ringlightd)")
			return mode, nil, err
		}
		logger.Warn("proc connector unavailable, falling back to camera mode",
			zap.Error(err))
		return domain.ModeCamera, nil, nil
	}
	return mode, source, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	if _, err := os.Stat(cfg.VideoDevice); err != nil {
		logger.Warn("video device not found", zap.String("device", cfg.VideoDevice))
	}

	mode, source, err := arbitrateMode(cfg.Mode, func() (domain.EventSource, error) {
		return infra.NewProcConnector(logger)
	}, logger)
	if err != nil {
		return err
	}

	var sessions domain.SessionStore = infra.NopHistory{}
	if cfg.HistoryDB != "" {
		store, err := infra.NewSQLiteHistory(cfg.HistoryDB)
		if err != nil {
			logger.Warn("session history disabled", zap.Error(err))
		} else {
			sessions = store
			defer func() { _ = store.Close() }()
		}
	}

	probe := infra.NewV4L2Probe(cfg.VideoDevice, logger)
	scanner := infra.NewProcScanner(cfg.WatchProcesses, cfg.VideoDevice, logger)
	resolver := infra.NewProcessResolver()
	launcher := infra.NewExecLauncher(cfg.OverlayBin, logger)
	supervisor := daemon.NewSupervisor(daemon.DefaultSupervisorConfig(), launcher, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	monitor := daemon.NewMonitor(cfg, mode, source, probe, scanner, resolver, supervisor, sessions, logger)
	return monitor.Run(ctx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagHistoryDB != "" {
		cfg.HistoryDB = flagHistoryDB
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("no history database configured")
	}

	store, err := infra.NewSQLiteHistory(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Recent(flagHistoryN)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No recorded activations.")
		return nil
	}

	fmt.Printf("%-20s  %-10s  %-8s  %s\n", "STARTED", "DURATION", "TRIGGER", "MODE")
	for _, s := range sessions {
		duration := "open"
		if !s.EndedAt.IsZero() {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%-20s  %-10s  %-8s  %s\n",
			s.StartedAt.Format("2006-01-02 15:04:05"),
			duration, s.Trigger, s.Mode)
	}
	return nil
}

func createLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch {
	case flagQuiet:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	case flagVerbose:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("ringlightd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
