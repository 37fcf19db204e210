package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pulse/internal/device"
	goble "github.com/srg/pulse/internal/device/go-ble"
	"github.com/srg/pulse/internal/groutine"
	"github.com/srg/pulse/internal/monitor"
	"github.com/srg/pulse/internal/report"
	"github.com/srg/pulse/pkg/config"
	"golang.org/x/term"
)

const (
	eventBufferSize = 64
	teardownTimeout = 5 * time.Second
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [device-address]",
	Short: "Stream heart rate from a BLE monitor and summarize the session",
	Long: `Finds a heart rate monitor, subscribes to its Heart Rate Measurement
characteristic and prints every reading. On Ctrl+C, when --duration elapses
or when the link drops, it disconnects and prints the session summary.

Without an address the first device matching the filter is used. The default
filter accepts any device advertising the Heart Rate service (180d) or named
Fitbit*, Apple*, Garmin* or "Sw 81".

Examples:
  # First heart rate monitor in range
  pulse monitor

  # A known strap, 30 minute session, JSON summary
  pulse monitor AA:BB:CC:DD:EE:FF --duration 30m --format json

  # Only Polar straps
  pulse monitor --name-prefix Polar`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorConnectTimeout time.Duration
	monitorScanTimeout    time.Duration
	monitorDuration       time.Duration
	monitorFormat         string
	monitorNamePrefixes   []string
	monitorNames          []string
	monitorServices       []string
	monitorMeasurements   bool
)

// transportFactory creates the BLE transport (can be overridden in tests)
var transportFactory = func(opts *goble.Options, logger *logrus.Logger) device.Transport {
	return goble.NewTransport(opts, logger)
}

func init() {
	initMonitorFlags()
}

func initMonitorFlags() {
	defaults := config.DefaultConfig()

	f := monitorCmd.Flags()
	f.DurationVar(&monitorConnectTimeout, "timeout", defaults.ConnectTimeout, "Connection timeout")
	f.DurationVar(&monitorScanTimeout, "scan-timeout", defaults.ScanTimeout, "How long to look for a device")
	f.DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	f.StringVarP(&monitorFormat, "format", "f", defaults.OutputFormat, "Summary format (table, json, yaml)")
	f.StringSliceVar(&monitorNamePrefixes, "name-prefix", nil, "Accept devices whose name starts with this prefix (repeatable)")
	f.StringSliceVar(&monitorNames, "name", nil, "Accept devices with exactly this name (repeatable)")
	f.StringSliceVarP(&monitorServices, "service", "s", nil, "Accept devices advertising this service UUID (repeatable)")
	f.BoolVar(&monitorMeasurements, "measurements", false, "Include every measurement in the summary")
	f.Bool("verbose", false, "Enable debug logging")
}

// applyMonitorFlags overlays explicitly set flags on the loaded config.
// Any filter flag replaces the configured filter as a whole.
func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.ConnectTimeout = monitorConnectTimeout
	}
	if flags.Changed("scan-timeout") {
		cfg.ScanTimeout = monitorScanTimeout
	}
	if flags.Changed("format") {
		cfg.OutputFormat = monitorFormat
	}
	if len(args) == 1 {
		cfg.Address = args[0]
	}
	if flags.Changed("name-prefix") || flags.Changed("name") || flags.Changed("service") {
		cfg.Filter = device.DeviceFilter{
			ServiceIDs:   monitorServices,
			NamePrefixes: monitorNamePrefixes,
			ExactNames:   monitorNames,
		}
	}
}

type eventKind int

const (
	eventConnected eventKind = iota
	eventHeartRate
	eventError
	eventDisconnected
)

type sessionEvent struct {
	kind    eventKind
	name    string
	bpm     int
	message string
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, logger, "verbose")
	if err != nil {
		return err
	}
	applyMonitorFlags(cmd, cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := transportFactory(&goble.Options{
		Address:        cfg.Address,
		ScanTimeout:    cfg.ScanTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)

	ctrl := monitor.New(transport,
		monitor.WithLogger(logger),
		monitor.WithFilter(cfg.DeviceFilter()),
	)

	// Everything written to stderr from here on may come from several goroutines
	stderr := newSyncWriter(cmd.ErrOrStderr())
	logger.SetOutput(stderr)

	// Keep stdout a clean document for machine-readable summaries
	var stream io.Writer = cmd.OutOrStdout()
	if format != report.FormatTable {
		stream = stderr
	}
	colored := format == report.FormatTable && isTerminal(cmd.OutOrStdout())

	events := newRingChannel[sessionEvent](eventBufferSize)
	lost := make(chan struct{})
	var lostOnce sync.Once
	var stopping atomic.Bool

	ctrl.OnConnect(func(name string) {
		events.Send(sessionEvent{kind: eventConnected, name: name})
	})
	ctrl.OnHeartRateUpdate(func(bpm int) {
		events.Send(sessionEvent{kind: eventHeartRate, bpm: bpm})
	})
	ctrl.OnError(func(message string) {
		events.Send(sessionEvent{kind: eventError, message: message})
	})
	ctrl.OnDisconnect(func() {
		events.Send(sessionEvent{kind: eventDisconnected})
		if !stopping.Load() {
			lostOnce.Do(func() { close(lost) })
		}
	})

	printerDone := groutine.Go(context.Background(), "event-printer", func(context.Context) {
		printEvents(stream, events, colored)
	})
	shutdown := func() {
		stopping.Store(true)
		teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := ctrl.Close(teardownCtx); err != nil {
			logger.WithField("error", err).Warn("Failed to close heart rate monitor")
		}
		events.Close()
		<-printerDone
		if n := events.Dropped(); n > 0 {
			logger.WithField("dropped", n).Warn("Event printer fell behind, some events were not shown")
		}
	}

	progress := newProgressPrinter(stderr, "Looking for a heart rate monitor", "Connecting")
	if isTerminal(cmd.ErrOrStderr()) {
		progress.Start()
	}
	identity, err := ctrl.Connect(ctx)
	progress.Stop()
	if err != nil {
		shutdown()
		return err
	}

	fmt.Fprintf(stderr, "Monitoring %s. Press Ctrl+C to stop...\n", identity.Name)

	var deadline <-chan time.Time
	if monitorDuration > 0 {
		timer := time.NewTimer(monitorDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Debug("Interrupted, stopping session")
	case <-deadline:
		logger.WithField("duration", monitorDuration).Debug("Session duration elapsed")
	case <-lost:
		runErr = ErrConnectionLost
	}

	stopping.Store(true)
	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := ctrl.Disconnect(teardownCtx); err != nil {
		logger.WithField("error", err).Warn("Disconnect failed")
	}
	status := ctrl.Status()
	shutdown()

	if format == report.FormatTable {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	err = report.Render(cmd.OutOrStdout(), report.Session{Device: identity.Name, Status: status}, format, report.Options{
		Color:            colored,
		WithMeasurements: monitorMeasurements,
	})
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	return runErr
}

// printEvents writes one line per event until events is closed
func printEvents(w io.Writer, events *ringChannel[sessionEvent], colored bool) {
	bpm := color.New(color.FgRed, color.Bold)
	warn := color.New(color.FgYellow)
	info := color.New(color.FgCyan)
	for _, c := range []*color.Color{bpm, warn, info} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	events.Drain(func(ev sessionEvent) {
		switch ev.kind {
		case eventConnected:
			fmt.Fprintln(w, info.Sprintf("Connected to %s", ev.name))
		case eventHeartRate:
			fmt.Fprintln(w, bpm.Sprintf("%d bpm", ev.bpm))
		case eventError:
			fmt.Fprintln(w, warn.Sprintf("error: %s", ev.message))
		case eventDisconnected:
			fmt.Fprintln(w, info.Sprint("Disconnected"))
		}
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
