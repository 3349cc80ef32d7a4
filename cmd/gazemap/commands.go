package main

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/gazemap/internal/config"
	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/heatmap"
	"github.com/verte-zerg/gazemap/internal/historyui"
	"github.com/verte-zerg/gazemap/internal/ingest"
	"github.com/verte-zerg/gazemap/internal/model"
	"github.com/verte-zerg/gazemap/internal/report"
	"github.com/verte-zerg/gazemap/internal/store"
)

const terminalWidthBackup = 80

var (
	renderCSV        string
	renderOut        string
	renderPage       string
	renderViewport   string
	renderScroll     float64
	renderRadius     float64
	renderBlur       float64
	renderMinOpacity float64
	renderMaxOpacity float64
	renderScale      int
	renderLocale     string

	historyPage  string
	historySince string
	historyLast  int
	historyPlain bool

	tokenSecret  string
	tokenSubject string
	tokenTTL     time.Duration
)

func newRenderCmd() *cobra.Command {
	defaults := model.DefaultHeatmapParams()
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a heatmap PNG from an exported CSV",
		Args:  cobra.NoArgs,
		RunE:  runRenderCmd,
	}
	flags := cmd.Flags()
	flags.StringVar(&renderCSV, "csv", "", "exported CSV to render")
	flags.StringVar(&renderOut, "out", "", "output PNG path (default: export directory)")
	flags.StringVar(&renderPage, "page", "", "only render samples for this page")
	flags.StringVar(&renderViewport, "viewport", "", "viewport size WxH (default: fit the samples)")
	flags.Float64Var(&renderScroll, "scroll", 0, "vertical scroll offset in pixels")
	flags.Float64Var(&renderRadius, "radius", defaults.Radius, "point radius in pixels")
	flags.Float64Var(&renderBlur, "blur", defaults.Blur, "blur in pixels")
	flags.Float64Var(&renderMinOpacity, "min-opacity", defaults.MinOpacity, "minimum overlay opacity (0-1)")
	flags.Float64Var(&renderMaxOpacity, "max-opacity", defaults.MaxOpacity, "maximum overlay opacity (0-1)")
	flags.IntVar(&renderScale, "scale", defaults.Scale, "grid cell size in pixels")
	flags.StringVar(&renderLocale, "locale", defaultLocale, "locale for the image label")
	return cmd
}

func runRenderCmd(cmd *cobra.Command, _ []string) error {
	if renderCSV == "" {
		return fmt.Errorf("--csv is required")
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFloatConfig(cmd, "radius", &renderRadius, fileCfg.Heatmap.Radius)
	applyFloatConfig(cmd, "blur", &renderBlur, fileCfg.Heatmap.Blur)
	applyFloatConfig(cmd, "min-opacity", &renderMinOpacity, fileCfg.Heatmap.MinOpacity)
	applyFloatConfig(cmd, "max-opacity", &renderMaxOpacity, fileCfg.Heatmap.MaxOpacity)
	applyIntConfig(cmd, "scale", &renderScale, fileCfg.Heatmap.Scale)
	applyStringConfig(cmd, "locale", &renderLocale, fileCfg.Session.Locale)

	params := model.HeatmapParams{
		Radius:     renderRadius,
		Blur:       renderBlur,
		MinOpacity: renderMinOpacity,
		MaxOpacity: renderMaxOpacity,
		Scale:      renderScale,
	}
	if err := validateParams(params); err != nil {
		return err
	}
	ramp, err := buildRamp(fileCfg.Heatmap.Gradient)
	if err != nil {
		return err
	}

	f, err := os.Open(renderCSV)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	samples, err := export.ParseCSV(f)
	if cerr := f.Close(); cerr != nil {
		logErrf("failed to close csv: %v\n", cerr)
	}
	if err != nil {
		return fmt.Errorf("failed to read csv: %w", err)
	}
	samples, page := selectPage(samples, renderPage)
	if len(samples) == 0 {
		return fmt.Errorf("no samples for page %q", renderPage)
	}

	var view model.Viewport
	if renderViewport != "" {
		if view, err = parseViewport(renderViewport); err != nil {
			return err
		}
	} else {
		view = fitViewport(samples, renderScroll)
	}
	view.ScrollY = renderScroll
	if !model.ValidSize(view.Width, view.Height) {
		return fmt.Errorf("viewport %dx%d out of range (sides 1-%d)", view.Width, view.Height, model.MaxViewportSide)
	}

	surface := image.NewRGBA(image.Rect(0, 0, view.Width, view.Height))
	heatmap.Render(surface, samples, view, ramp, params)
	now := time.Now()
	loc := export.ParseLocale(renderLocale)
	artifact, err := export.Image(surface, page, now, loc)
	if err != nil {
		return err
	}

	path := renderOut
	if path == "" {
		saved, err := export.DirSink{Dir: config.DefaultExportDir()}.Save(artifact)
		if err != nil {
			return err
		}
		path = saved
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(path, artifact.Bytes, 0o644); err != nil {
			return fmt.Errorf("failed to write png: %w", err)
		}
	}
	summary := fmt.Sprintf("rendered %s samples for %s (%dx%d) to %s",
		loc.Count(len(samples)), page, view.Width, view.Height, path)
	fmt.Println(truncateWidth(summary, terminalWidth()))
	return nil
}

// selectPage keeps the samples recorded for page. An empty page selects
// the page of the first sample.
func selectPage(samples []model.GazeSample, page string) ([]model.GazeSample, string) {
	if len(samples) == 0 {
		return nil, page
	}
	if page == "" {
		page = samples[0].Page
	}
	out := make([]model.GazeSample, 0, len(samples))
	for _, s := range samples {
		if s.Page == page {
			out = append(out, s)
		}
	}
	return out, page
}

// fitViewport returns the smallest viewport at scroll that covers every
// sample.
func fitViewport(samples []model.GazeSample, scroll float64) model.Viewport {
	var maxX, maxY float64
	for _, s := range samples {
		maxX = math.Max(maxX, s.X)
		maxY = math.Max(maxY, s.Y-scroll)
	}
	return model.Viewport{Width: int(math.Ceil(maxX)) + 1, Height: int(math.Ceil(maxY)) + 1}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show export history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	flags := cmd.Flags()
	flags.StringVar(&historyPage, "page", "", "only show this page")
	flags.StringVar(&historySince, "since", "", "only show exports since YYYY-MM-DD")
	flags.IntVar(&historyLast, "last", 0, "only show the last N exports")
	flags.BoolVar(&historyPlain, "plain", false, "print text instead of the interactive view")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := historyui.ParseFilter(historyPage, historySince, itoaOrEmpty(historyLast))
	if err != nil {
		return err
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	locale := defaultLocale
	if fileCfg.Session.Locale != nil {
		locale = *fileCfg.Session.Locale
	}
	loc := export.ParseLocale(locale)

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if historyPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		r, err := report.Build(cmd.Context(), st, cfg, 20)
		if err != nil {
			return err
		}
		return renderPlainHistory(r, loc, terminalWidth())
	}

	program := tea.NewProgram(historyui.NewModel(st, cfg, loc), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run history TUI: %w", err)
	}
	return nil
}

func renderPlainHistory(r report.Report, loc export.Locale, width int) error {
	out := os.Stdout
	if err := report.RenderSummary(out, r, loc); err != nil {
		return err
	}
	if len(r.Exports) == 0 {
		return nil
	}
	if err := report.RenderPages(out, r.Pages, loc, width); err != nil {
		return err
	}
	if err := report.RenderExports(out, r.Exports, loc, width); err != nil {
		return err
	}
	return report.RenderSessions(out, r.Sessions, loc, width)
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the ingest server",
		Args:  cobra.NoArgs,
		RunE:  runTokenCmd,
	}
	flags := cmd.Flags()
	flags.StringVar(&tokenSecret, "token-secret", "", "HS256 signing secret")
	flags.StringVar(&tokenSubject, "subject", "tracker", "token subject")
	flags.DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func runTokenCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "token-secret", &tokenSecret, fileCfg.Source.TokenSecret)
	if tokenSecret == "" {
		return fmt.Errorf("--token-secret is required")
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("--ttl must be > 0")
	}
	token, err := ingest.MintToken(tokenSecret, tokenSubject, tokenTTL, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func itoaOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func truncateWidth(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
