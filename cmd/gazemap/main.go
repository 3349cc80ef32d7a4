// Package main provides the CLI entrypoint for gazemap.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/gazemap/internal/config"
	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/gaze"
	"github.com/verte-zerg/gazemap/internal/heatmap"
	"github.com/verte-zerg/gazemap/internal/ingest"
	"github.com/verte-zerg/gazemap/internal/logging"
	"github.com/verte-zerg/gazemap/internal/model"
	"github.com/verte-zerg/gazemap/internal/session"
	"github.com/verte-zerg/gazemap/internal/store"
	"github.com/verte-zerg/gazemap/internal/tui"
)

const (
	defaultViewport  = "1280x800"
	defaultRoute     = "/"
	defaultCollision = "drop"
	defaultLocale    = "en-US"
	defaultLogLevel  = "info"
)

var (
	trackIn             string
	trackListen         string
	trackSynthetic      bool
	trackSyntheticPages string
	trackSyntheticEvery int
	trackReplaySpeed    float64
	trackOutDir         string
	trackRadius         float64
	trackBlur           float64
	trackMinOpacity     float64
	trackMaxOpacity     float64
	trackScale          int
	trackViewport       string
	trackLocale         string
	trackCollision      string
	trackTokenSecret    string
	trackRoute          string
	trackAutoStart      bool
	trackLogLevel       string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := model.DefaultHeatmapParams()
	rootCmd := &cobra.Command{
		Use:           "gazemap",
		Short:         "Gaze heatmap tracker",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTrackCmd,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&trackIn, "in", "", "read JSON-lines gaze records from a file or - for stdin")
	flags.StringVar(&trackListen, "listen", "", "accept gaze records over HTTP on this address")
	flags.BoolVar(&trackSynthetic, "synthetic", false, "use the synthetic gaze source")
	flags.StringVar(&trackSyntheticPages, "synthetic-pages", "", "comma-separated routes the synthetic source visits")
	flags.IntVar(&trackSyntheticEvery, "synthetic-every", 300, "synthetic samples per page before navigating")
	flags.Float64Var(&trackReplaySpeed, "replay-speed", 0, "pace --in records by timestamp (0 = as fast as possible)")
	flags.StringVar(&trackOutDir, "out-dir", config.DefaultExportDir(), "directory for exported files")
	flags.Float64Var(&trackRadius, "radius", defaults.Radius, "point radius in pixels")
	flags.Float64Var(&trackBlur, "blur", defaults.Blur, "blur in pixels")
	flags.Float64Var(&trackMinOpacity, "min-opacity", defaults.MinOpacity, "minimum overlay opacity (0-1)")
	flags.Float64Var(&trackMaxOpacity, "max-opacity", defaults.MaxOpacity, "maximum overlay opacity (0-1)")
	flags.IntVar(&trackScale, "scale", defaults.Scale, "grid cell size in pixels")
	flags.StringVar(&trackViewport, "viewport", defaultViewport, "viewport size WxH")
	flags.StringVar(&trackLocale, "locale", defaultLocale, "locale for labels and counters")
	flags.StringVar(&trackCollision, "collision", defaultCollision, "page change during export: drop or queue")
	flags.StringVar(&trackTokenSecret, "token-secret", "", "require HS256 tokens signed with this secret on --listen")
	flags.StringVar(&trackRoute, "route", defaultRoute, "initial page route")
	flags.BoolVar(&trackAutoStart, "start", false, "start tracking immediately")
	flags.StringVar(&trackLogLevel, "log-level", defaultLogLevel, "log level: debug, info, warn or error")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

func runTrackCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFloatConfig(cmd, "radius", &trackRadius, fileCfg.Heatmap.Radius)
	applyFloatConfig(cmd, "blur", &trackBlur, fileCfg.Heatmap.Blur)
	applyFloatConfig(cmd, "min-opacity", &trackMinOpacity, fileCfg.Heatmap.MinOpacity)
	applyFloatConfig(cmd, "max-opacity", &trackMaxOpacity, fileCfg.Heatmap.MaxOpacity)
	applyIntConfig(cmd, "scale", &trackScale, fileCfg.Heatmap.Scale)
	applyStringConfig(cmd, "out-dir", &trackOutDir, fileCfg.Session.OutDir)
	applyStringConfig(cmd, "locale", &trackLocale, fileCfg.Session.Locale)
	applyStringConfig(cmd, "collision", &trackCollision, fileCfg.Session.Collision)
	applyStringConfig(cmd, "route", &trackRoute, fileCfg.Session.Route)
	applyStringConfig(cmd, "viewport", &trackViewport, fileCfg.Session.Viewport)
	applyStringConfig(cmd, "in", &trackIn, fileCfg.Source.Input)
	applyStringConfig(cmd, "listen", &trackListen, fileCfg.Source.Listen)
	applyStringConfig(cmd, "token-secret", &trackTokenSecret, fileCfg.Source.TokenSecret)
	applyBoolConfig(cmd, "synthetic", &trackSynthetic, fileCfg.Source.Synthetic)
	applyFloatConfig(cmd, "replay-speed", &trackReplaySpeed, fileCfg.Source.ReplaySpeed)

	view, err := parseViewport(trackViewport)
	if err != nil {
		return err
	}
	cfg := model.Config{
		Heatmap: model.HeatmapParams{
			Radius:     trackRadius,
			Blur:       trackBlur,
			MinOpacity: trackMinOpacity,
			MaxOpacity: trackMaxOpacity,
			Scale:      trackScale,
		},
		Gradient:     fileCfg.Heatmap.Gradient,
		Viewport:     view,
		OutDir:       trackOutDir,
		Locale:       trackLocale,
		Collision:    trackCollision,
		InitialRoute: trackRoute,
		Input:        trackIn,
		Listen:       trackListen,
		TokenSecret:  trackTokenSecret,
		Synthetic:    trackSynthetic,
		ReplaySpeed:  trackReplaySpeed,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	collision, err := session.ParseCollision(cfg.Collision)
	if err != nil {
		return err
	}
	ramp, err := buildRamp(cfg.Gradient)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(trackLogLevel)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.OpenFile(config.DefaultLogPath(), level)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logCloser.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	src, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.close()

	ctx := context.Background()
	sessionID, err := st.BeginSession(ctx, time.Now(), cfg.InitialRoute, src.name)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	defer func() {
		if err := st.EndSession(context.Background(), sessionID, time.Now()); err != nil {
			logErrf("failed to close session: %v\n", err)
		}
	}()

	sink := &store.RecordingSink{
		Next:      export.DirSink{Dir: cfg.OutDir},
		Store:     st,
		SessionID: sessionID,
		Logger:    logger,
	}
	m := tui.NewModel(tui.Options{
		Session: session.Options{
			Source:    src.source,
			Sink:      sink,
			Overlay:   heatmap.NewOverlay(cfg.Heatmap, ramp),
			Logger:    logger.With("session", sessionID),
			Collision: collision,
			Locale:    export.ParseLocale(cfg.Locale),
			Route:     cfg.InitialRoute,
			Viewport:  cfg.Viewport,
		},
		AutoStart:  trackAutoStart,
		SourceDone: src.done,
		SourceErr:  src.err,
	})

	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.Input == "-" {
		programOpts = append(programOpts, tea.WithInputTTY())
	}
	program := tea.NewProgram(m, programOpts...)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	if src.err != nil {
		if err := src.err(); err != nil {
			logErrln("input stopped early:", err)
		}
	}
	return nil
}

type sourceHandle struct {
	source gaze.Source
	name   string
	done   <-chan struct{}
	err    func() error
	closer io.Closer
}

func (h sourceHandle) close() {
	if h.closer == nil {
		return
	}
	if err := h.closer.Close(); err != nil {
		logErrf("failed to close input: %v\n", err)
	}
}

func buildSource(cfg model.Config, logger *slog.Logger) (sourceHandle, error) {
	switch {
	case cfg.Input != "":
		var r io.Reader = os.Stdin
		var closer io.Closer
		if cfg.Input != "-" {
			f, err := os.Open(cfg.Input)
			if err != nil {
				return sourceHandle{}, fmt.Errorf("failed to open input: %w", err)
			}
			r, closer = f, f
		}
		s := gaze.NewStreamSource(r, gaze.StreamOptions{
			ReplaySpeed: cfg.ReplaySpeed,
			MaxSleep:    2 * time.Second,
			Logger:      logger.With("source", "stream"),
		})
		return sourceHandle{source: s, name: "stream", done: s.Done(), err: s.Err, closer: closer}, nil
	case cfg.Listen != "":
		s := ingest.New(ingest.Options{
			Addr:   cfg.Listen,
			Secret: cfg.TokenSecret,
			Logger: logger.With("source", "ingest"),
		})
		return sourceHandle{source: s, name: "ingest"}, nil
	default:
		s := gaze.NewSynthetic(gaze.SyntheticOptions{
			Seed:      time.Now().UnixNano(),
			Width:     cfg.Viewport.Width,
			Height:    cfg.Viewport.Height,
			Routes:    splitList(trackSyntheticPages),
			PageEvery: trackSyntheticEvery,
		})
		return sourceHandle{source: s, name: "synthetic"}, nil
	}
}

func buildRamp(gradient map[string]string) (*heatmap.Ramp, error) {
	if len(gradient) == 0 {
		return nil, nil
	}
	stops, err := heatmap.ParseStops(gradient)
	if err != nil {
		return nil, fmt.Errorf("invalid gradient: %w", err)
	}
	ramp, err := heatmap.NewRamp(stops)
	if err != nil {
		return nil, fmt.Errorf("invalid gradient: %w", err)
	}
	return ramp, nil
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
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func parseViewport(s string) (model.Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return model.Viewport{}, fmt.Errorf("invalid viewport %q (expected WxH)", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("invalid viewport width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("invalid viewport height %q", h)
	}
	if width < 0 || height < 0 {
		return model.Viewport{}, fmt.Errorf("viewport must not be negative")
	}
	if width > model.MaxViewportSide || height > model.MaxViewportSide {
		return model.Viewport{}, fmt.Errorf("viewport sides must not exceed %d", model.MaxViewportSide)
	}
	return model.Viewport{Width: width, Height: height}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateParams(p model.HeatmapParams) error {
	if p.Radius <= 0 {
		return fmt.Errorf("--radius must be > 0")
	}
	if p.Blur < 0 {
		return fmt.Errorf("--blur must be >= 0")
	}
	if p.MinOpacity < 0 || p.MinOpacity > 1 {
		return fmt.Errorf("--min-opacity must be between 0 and 1")
	}
	if p.MaxOpacity < 0 || p.MaxOpacity > 1 {
		return fmt.Errorf("--max-opacity must be between 0 and 1")
	}
	if p.MinOpacity > p.MaxOpacity {
		return fmt.Errorf("--min-opacity must not exceed --max-opacity")
	}
	if p.Scale < 1 {
		return fmt.Errorf("--scale must be >= 1")
	}
	return nil
}

func validateConfig(cfg model.Config) error {
	if err := validateParams(cfg.Heatmap); err != nil {
		return err
	}
	sources := 0
	for _, set := range []bool{cfg.Input != "", cfg.Listen != "", cfg.Synthetic} {
		if set {
			sources++
		}
	}
	if sources == 0 {
		return fmt.Errorf("choose a gaze source: --in, --listen or --synthetic")
	}
	if sources > 1 {
		return fmt.Errorf("--in, --listen and --synthetic are mutually exclusive")
	}
	if cfg.ReplaySpeed < 0 {
		return fmt.Errorf("--replay-speed must be >= 0")
	}
	if cfg.TokenSecret != "" && cfg.Listen == "" {
		return fmt.Errorf("--token-secret requires --listen")
	}
	if cfg.OutDir == "" {
		return fmt.Errorf("--out-dir must not be empty")
	}
	if cfg.InitialRoute == "" {
		return fmt.Errorf("--route must not be empty")
	}
	if cfg.Synthetic && trackSyntheticEvery < 0 {
		return fmt.Errorf("--synthetic-every must be >= 0")
	}
	return nil
}

func defaultConfigTemplate() string {
	defaults := model.DefaultHeatmapParams()
	return fmt.Sprintf(`# gazemap configuration
# Uncomment a value to enable it. CLI flags override config values.

[heatmap]
# radius = %.0f            # Point radius in pixels
# blur = %.0f              # Blur in pixels
# min-opacity = %.2f     # Minimum overlay opacity (0-1)
# max-opacity = %.2f     # Maximum overlay opacity (0-1)
# scale = %d               # Grid cell size in pixels

# [heatmap.gradient]
# "0.4" = "blue"
# "0.6" = "cyan"
# "0.7" = "lime"
# "0.8" = "yellow"
# "1.0" = "red"

[session]
# out-dir = %q
# locale = %q
# collision = %q         # drop or queue
# route = %q
# viewport = %q

[source]
# in = "gaze.jsonl"        # File or "-" for stdin
# listen = "127.0.0.1:8765"
# token-secret = ""
# synthetic = false
# replay-speed = 1.0
`,
		defaults.Radius,
		defaults.Blur,
		defaults.MinOpacity,
		defaults.MaxOpacity,
		defaults.Scale,
		config.DefaultExportDir(),
		defaultLocale,
		defaultCollision,
		defaultRoute,
		defaultViewport,
	)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
