package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shazow/wifimgr/internal/config"
	"github.com/shazow/wifimgr/internal/credentials"
	wifilog "github.com/shazow/wifimgr/internal/log"
	"github.com/shazow/wifimgr/internal/store"
	"github.com/shazow/wifimgr/internal/tui"
	"github.com/shazow/wifimgr/netmgr"
	"github.com/shazow/wifimgr/wifi"
	"github.com/shazow/wifimgr/wifi/system"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

// app holds everything a subcommand needs. open builds it lazily so that
// -version and -help never touch the store or the radio.
type app struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer

	// adapter overrides the adapter chosen by -backend.
	adapter wifi.Adapter

	level   *slog.LevelVar
	handler *wifilog.Handler
	logs    chan tea.Msg

	svc     *system.Service
	creds   *credentials.Store
	manager *netmgr.Manager
	closers []func() error
}

// open wires the logger, service, stores and manager. Interactive sessions
// log only to the in-memory ring so the terminal stays clean.
func (a *app) open(ctx context.Context, interactive bool) error {
	a.level = new(slog.LevelVar)
	logOut := a.stderr
	if interactive {
		logOut = io.Discard
	}
	handler, err := wifilog.Init(logOut, a.cfg.LogFormat, a.level)
	if err != nil {
		return err
	}
	a.handler = handler
	if interactive {
		a.logs = make(chan tea.Msg, 16)
		handler.SetOutput(a.logs)
	}
	logger := slog.New(handler)

	mode, err := netmgr.ParseSimulatorMode(a.cfg.Simulator)
	if err != nil {
		return err
	}

	if a.adapter != nil {
		a.svc = system.New(a.adapter.Name(), a.adapter, logger)
	} else {
		svc, err := system.NewForBackend(a.cfg.Backend, wifi.ExecRunner{}, logger)
		if err != nil {
			return err
		}
		a.svc = svc
	}

	if a.cfg.DB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.DB), 0o700); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	records, err := store.NewSQLite(ctx, a.cfg.DB)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, records.Close)

	key, err := credentials.LoadOrCreateKey(a.cfg.KeyFile)
	if err != nil {
		return err
	}
	a.creds = credentials.New(records, credentials.AESGCM{}, key)

	manager, err := netmgr.New(ctx, netmgr.Options{
		Service:     a.svc,
		Store:       records,
		Credentials: a.creds,
		Logger:      logger,
		Simulator:   mode,
		Seed:        a.cfg.Seed,
		LevelVar:    a.level,
	})
	if err != nil {
		return err
	}
	a.manager = manager
	a.closers = append(a.closers, manager.Close)

	if a.cfg.LogLevel != "" {
		level, err := netmgr.ParseLevel(a.cfg.LogLevel)
		if err != nil {
			return err
		}
		a.level.Set(level)
	}

	return manager.Start(ctx)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// cmd opens the app, checks for at least nargs positional args and runs fn.
func (a *app) cmd(nargs int, usage string, fn func(ctx context.Context, args []string) error) func(ctx context.Context, args []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) < nargs {
			return fmt.Errorf("usage: wifimgr %s", usage)
		}
		if err := a.open(ctx, false); err != nil {
			a.Close()
			return err
		}
		defer a.Close()
		return fn(ctx, args)
	}
}

// monitor runs the interactive monitor.
func (a *app) monitor(ctx context.Context) error {
	if err := tui.LoadThemeFile(a.cfg.Theme); err != nil {
		return fmt.Errorf("error loading theme: %w", err)
	}
	if err := a.open(ctx, true); err != nil {
		a.Close()
		return err
	}
	defer a.Close()
	return tui.Run(ctx, a.manager, tui.Options{Logs: a.logs, Records: a.handler.Logs})
}

func (a *app) commands() *ffcli.Command {
	rootFlagSet := flag.NewFlagSet("wifimgr", flag.ContinueOnError)
	a.cfg.Register(rootFlagSet)

	scanCmd := &ffcli.Command{
		Name:      "scan",
		ShortHelp: "Scan for wifi networks",
		Exec: a.cmd(0, "scan", func(ctx context.Context, args []string) error {
			return runScan(ctx, a.stdout, a.cfg.Format, a.manager)
		}),
	}

	listCmd := &ffcli.Command{
		Name:      "list",
		ShortHelp: "List the networks the adapter currently sees, without scanning",
		Exec: a.cmd(0, "list", func(ctx context.Context, args []string) error {
			return runList(ctx, a.stdout, a.cfg.Format, a.svc)
		}),
	}

	currentCmd := &ffcli.Command{
		Name:      "current",
		ShortHelp: "Show the current connection",
		Exec: a.cmd(0, "current", func(ctx context.Context, args []string) error {
			return runCurrent(a.stdout, a.cfg.Format, a.manager)
		}),
	}

	savedFlagSet := flag.NewFlagSet("saved", flag.ContinueOnError)
	savedSystem := savedFlagSet.Bool("system", false, "list the operating system's profiles instead")
	savedCmd := &ffcli.Command{
		Name:      "saved",
		ShortHelp: "List saved networks",
		FlagSet:   savedFlagSet,
		Exec: a.cmd(0, "saved [-system]", func(ctx context.Context, args []string) error {
			return runSaved(ctx, a.stdout, a.cfg.Format, a.manager, *savedSystem)
		}),
	}

	var connectOpts connectOptions
	connectFlagSet := flag.NewFlagSet("connect", flag.ContinueOnError)
	connectFlagSet.StringVar(&connectOpts.Password, "password", "", "password for the network")
	connectFlagSet.BoolVar(&connectOpts.NoSave, "no-save", false, "do not save the network or its password")
	connectFlagSet.BoolVar(&connectOpts.Wait, "wait", false, "keep waiting while the connection is retried")
	connectCmd := &ffcli.Command{
		Name:       "connect",
		ShortUsage: "wifimgr connect [flags] <bssid|ssid>",
		ShortHelp:  "Connect to a wifi network",
		FlagSet:    connectFlagSet,
		Exec: a.cmd(1, "connect [flags] <bssid|ssid>", func(ctx context.Context, args []string) error {
			return runConnect(ctx, a.stdout, a.manager, args[0], connectOpts)
		}),
	}

	disconnectCmd := &ffcli.Command{
		Name:      "disconnect",
		ShortHelp: "Disconnect from the current network",
		Exec: a.cmd(0, "disconnect", func(ctx context.Context, args []string) error {
			return runDisconnect(ctx, a.stdout, a.manager)
		}),
	}

	forgetCmd := &ffcli.Command{
		Name:       "forget",
		ShortUsage: "wifimgr forget <bssid>",
		ShortHelp:  "Forget a saved network and its password",
		Exec: a.cmd(1, "forget <bssid>", func(ctx context.Context, args []string) error {
			return runForget(ctx, a.stdout, a.manager, args[0])
		}),
	}

	settingsCmd := &ffcli.Command{
		Name:       "settings",
		ShortUsage: "wifimgr settings [key=value ...]",
		ShortHelp:  "Show or change engine settings",
		Exec: a.cmd(0, "settings [key=value ...]", func(ctx context.Context, args []string) error {
			return runSettings(ctx, a.stdout, a.cfg.Format, a.manager, args)
		}),
	}

	qrCmd := &ffcli.Command{
		Name:       "qr",
		ShortUsage: "wifimgr qr <bssid>",
		ShortHelp:  "Print a QR code that joins a saved network",
		Exec: a.cmd(1, "qr <bssid>", func(ctx context.Context, args []string) error {
			return runQR(ctx, a.stdout, a.manager, a.creds, args[0])
		}),
	}

	monitorCmd := &ffcli.Command{
		Name:      "monitor",
		ShortHelp: "Interactive network monitor (default)",
		Exec: func(ctx context.Context, args []string) error {
			return a.monitor(ctx)
		},
	}

	return &ffcli.Command{
		ShortUsage: "wifimgr [flags] <subcommand> [args...]",
		FlagSet:    rootFlagSet,
		Options:    config.Options(),
		Subcommands: []*ffcli.Command{
			scanCmd, listCmd, currentCmd, savedCmd, connectCmd, disconnectCmd,
			forgetCmd, settingsCmd, qrCmd, monitorCmd,
		},
		Exec: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q", args[0])
			}
			return a.monitor(ctx)
		},
	}
}

// main is the entry point of the application
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	root := a.commands()
	if err := root.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if a.cfg.Version {
		fmt.Println(Version)
		os.Exit(0)
	}
	if err := root.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
