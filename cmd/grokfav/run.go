package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"grokfav/internal/downloader"
	"grokfav/pkg/browser"
	"grokfav/pkg/config"
	"grokfav/pkg/fetch"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
	"grokfav/pkg/ratelimit"
	"grokfav/pkg/report"
	"grokfav/pkg/scraper"
	"grokfav/pkg/status"
	"grokfav/pkg/storage"
	"grokfav/pkg/ui"
)

var (
	// Run command flags
	galleryURL  string
	runDebug    bool
	runLimit    int
	outputDir   string
	headless    bool
	userDataDir string
	browserPath string
	concurrent  int
	rateLimit   int
	unfavorite  string
	noWait      bool
)

// runCmd harvests the gallery and downloads everything on it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest the favorites gallery and download every file",
	Long: `Open the favorites gallery in a browser, scroll until every card has
rendered, and download all images and videos into a new session folder.

The browser keeps its profile between runs, so you only need to sign in once.
Without --headless you get a chance to sign in or solve verification prompts
before the harvest starts.

After the downloads finish you can unfavorite some or all of the cards:
  --unfavorite prompt   ask interactively (default)
  --unfavorite none     keep everything favorited
  --unfavorite all      unfavorite every downloaded card
  --unfavorite 0,2,5-7  unfavorite the listed entries`,
	Example: `  # Download everything, asking about unfavorites at the end
  grokfav run

  # Try it on the first ten files only, with harvest diagnostics
  grokfav run --limit 10 --debug

  # Unattended: headless, keep favorites untouched
  grokfav run --headless --unfavorite none --output ~/Pictures/grok`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&galleryURL, "url", "u", "", "favorites gallery URL")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "show harvest diagnostics and per-file status")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "download only the first N files (0 = all)")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory the session folder is created in")
	runCmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	runCmd.Flags().StringVar(&userDataDir, "user-data-dir", "", "browser profile directory")
	runCmd.Flags().StringVar(&browserPath, "browser-path", "", "Chrome/Chromium executable")
	runCmd.Flags().IntVar(&concurrent, "concurrent", 3, "number of concurrent transfers")
	runCmd.Flags().IntVar(&rateLimit, "rate-limit", 120, "transfers per minute")
	runCmd.Flags().StringVar(&unfavorite, "unfavorite", "", "after downloading: prompt, none, all or a selection like 0,2,5-7")
	runCmd.Flags().BoolVar(&noWait, "no-wait", false, "start harvesting as soon as the page loads")
}

// runOverrides collects the run flags the user actually set
func runOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := globalOverrides(cmd)
	set := cmd.Flags().Changed

	if set("url") {
		flags["url"] = galleryURL
	}
	if set("output") {
		flags["output"] = outputDir
	}
	if set("headless") {
		flags["headless"] = headless
	}
	if set("user-data-dir") {
		flags["user-data-dir"] = userDataDir
	}
	if set("browser-path") {
		flags["browser-path"] = browserPath
	}
	if set("concurrent") {
		flags["concurrent"] = concurrent
	}
	if set("rate-limit") {
		flags["rate-limit"] = rateLimit
	}
	if set("unfavorite") {
		flags["unfavorite"] = unfavorite
	}
	return flags
}

// transferTally counts asynchronous transfer outcomes from the pool
type transferTally struct {
	mu      sync.Mutex
	saved   int
	skipped int
	failed  []string
}

func (t *transferTally) add(r downloader.TransferResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case r.Skipped:
		t.skipped++
	case r.Success:
		t.saved++
	default:
		t.failed = append(t.failed, r.Request.TargetPath)
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	interactive := ui.IsInteractive(os.Stdout) && ui.IsInteractive(os.Stdin)
	progressMode := interactive && !verbose && !quiet

	flags := runOverrides(cmd)
	// The progress bar owns the terminal unless the user asked for logs
	if progressMode && !cmd.Flags().Changed("log-level") {
		flags["log-level"] = "error"
	}

	console := newConsole(runDebug || verbose)
	cfg, err := loadConfig(console, flags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		console.Error("Failed to initialize logger", err)
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("grokfav starting")

	if !quiet {
		console.Banner()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		console.Error("Failed to prepare output directory", err)
		return err
	}
	console.Info("Output", store.BaseDir())
	console.Info("Gallery", cfg.Browser.GalleryURL)

	session, err := browser.Launch(ctx, cfg.Browser, log)
	if err != nil {
		console.Error("Failed to start browser", err)
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser")
		}
	}()

	if err := session.Open(ctx, cfg.Browser.GalleryURL); err != nil {
		console.Error("Failed to open gallery", err)
		return err
	}

	if !cfg.Browser.Headless && interactive && !noWait {
		console.Println("Sign in and open your favorites in the browser window, then press Enter to start.")
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
	}

	client := fetch.NewClient(cfg.Download, cfg.Retry, log)
	if err := installCookies(ctx, session, client); err != nil {
		log.WithError(err).Warn("Downloads will run without the browser session cookies")
	}

	pool := downloader.NewWorkerPool(downloader.Options{
		Workers:           cfg.Download.ConcurrentDownloads,
		QueueSize:         cfg.Download.QueueSize,
		OverwriteExisting: cfg.Output.OverwriteExisting,
		MaxFileSize:       cfg.Download.MaxFileSize,
	}, client, store, ratelimit.FromSettings(cfg.RateLimit), log)
	pool.Start()

	sinks := status.Multi{logger.StatusSink{Logger: log}}
	if progressMode {
		sinks = append(sinks, ui.NewConsole(os.Stdout, ui.ConsoleOptions{Quiet: true, NoColor: noColor}))
		sinks = append(sinks, ui.NewProgressSink(os.Stderr, "Queueing"))
	} else {
		sinks = append(sinks, console)
	}
	if cfg.Notifications.Enabled {
		notifier := ui.NewNotifier(ui.PlatformSender(), cfg.Notifications)
		notifier.OnSendError = func(err error) {
			log.WithError(err).Debug("Desktop notification failed")
		}
		sinks = append(sinks, notifier)
	}

	s := scraper.New(pool, sinks, scraper.OptionsFromConfig(cfg), log)
	s.Attach(&scraper.Page{
		Surface:  session.Surface(cfg.Harvest),
		Resolver: session.Resolver(cfg.Harvest),
		Reverser: session.Unfavoriter(cfg.Harvest, cfg.Reversal),
	})

	writer, err := reportWriter(cfg, store, log)
	if err != nil {
		pool.Stop()
		console.Error("Invalid report format", err)
		return err
	}
	if writer != nil {
		s.OnComplete(func(summary models.Summary) {
			if _, err := writer.WriteSummary(summary); err != nil {
				log.WithError(err).Warn("Failed to write run report")
			}
		})
	}

	tally := &transferTally{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for r := range pool.Results() {
			tally.add(r)
			if r.Error != nil && !r.Skipped {
				log.WithError(r.Error).WithField("target", r.Request.TargetPath).Warn("Transfer failed")
			}
		}
		return nil
	})

	res := s.StartHarvestAndDownload(ctx, runDebug, runLimit)
	switch res.Status {
	case scraper.StartStarted:
	case scraper.StartEmpty:
		pool.Stop()
		_ = g.Wait()
		logger.WithError(res.Err).Warn("Nothing to download")
		console.Warn(res.Message)
		return nil
	default:
		pool.Stop()
		_ = g.Wait()
		return startError(res)
	}

	var summary models.Summary
	var runErr error
	g.Go(func() error {
		summary, runErr = s.Wait(gctx)
		if runErr != nil {
			pool.Abort()
		} else {
			pool.Stop()
		}
		return nil
	})
	_ = g.Wait()

	if runErr != nil {
		console.Error("Run ended early", runErr)
		return runErr
	}

	printTransfers(console, tally, pool.Stats())
	if writer != nil {
		console.Info("Report", writer.PathFor(summary.SessionFolder))
	}

	if len(summary.ReversalEntries) == 0 {
		return nil
	}
	return handleReversal(ctx, s, console, cfg.Reversal.Mode, summary.SessionFolder, writer)
}

// installCookies copies the signed-in browser session into the media client
func installCookies(ctx context.Context, session *browser.Session, client *fetch.Client) error {
	location, err := session.Location(ctx)
	if err != nil {
		return err
	}
	origin, err := browser.Origin(location)
	if err != nil {
		return err
	}
	cookies, err := session.Cookies(ctx, location)
	if err != nil {
		return err
	}
	return client.SetCookies(origin, cookies)
}

// reportWriter returns nil when reports are disabled
func reportWriter(cfg *config.Config, store *storage.Manager, log logger.Logger) (*report.Writer, error) {
	if strings.EqualFold(cfg.Output.ReportFormat, "none") {
		return nil, nil
	}
	format, err := report.ParseFormat(cfg.Output.ReportFormat)
	if err != nil {
		return nil, err
	}
	return report.NewWriter(store, format, log), nil
}

func startError(res scraper.StartResult) error {
	switch res.Status {
	case scraper.StartBusy:
		return errors.New("a run is already in progress")
	case scraper.StartNeedPage:
		return errors.New("no gallery page is attached")
	default:
		return errors.New(res.Message)
	}
}

func printTransfers(console *ui.Console, tally *transferTally, stats downloader.Stats) {
	tally.mu.Lock()
	defer tally.mu.Unlock()

	console.Info("Saved", fmt.Sprintf("%d files (%s)", tally.saved, ui.FormatBytes(stats.Bytes)))
	if tally.skipped > 0 {
		console.Info("Skipped", fmt.Sprintf("%d existing files", tally.skipped))
	}
	if n := len(tally.failed); n > 0 {
		console.Warn(fmt.Sprintf("%d transfers failed after being queued", n))
		for _, target := range tally.failed {
			console.Println("  - " + target)
		}
	}
}

// handleReversal runs the unfavorite pass the configured mode asks for
func handleReversal(ctx context.Context, s *scraper.Scraper, console *ui.Console, mode, sessionFolder string, writer *report.Writer) error {
	entries := s.ReversalEntries()
	if len(entries) == 0 {
		return nil
	}

	var indices []int
	var err error
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "none", "skip":
		s.SkipReversal()
		return nil
	case "prompt":
		if !ui.IsInteractive(os.Stdin) {
			console.Warn("Not a terminal; leaving favorites untouched.")
			s.SkipReversal()
			return nil
		}
		indices, err = ui.PromptReversal(entries, os.Stdin, os.Stdout)
	default:
		indices, err = ui.ParseSelection(mode, len(entries))
	}
	if err != nil {
		console.Error("Invalid selection", err)
		s.SkipReversal()
		return err
	}
	if len(indices) == 0 {
		s.SkipReversal()
		return nil
	}

	rr, err := s.ExecuteReversal(ctx, indices)
	if writer != nil {
		if werr := writer.RecordReversal(sessionFolder, rr); werr != nil {
			logger.WithError(werr).Warn("Failed to record unfavorite results")
		}
	}
	return err
}
