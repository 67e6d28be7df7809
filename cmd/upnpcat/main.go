package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey-austin/upnpcat/internal/adapters/config"
	"github.com/mikey-austin/upnpcat/internal/adapters/output"
	"github.com/mikey-austin/upnpcat/internal/core"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

type app struct {
	service *core.Service
	printer output.Printer
	log     *zap.Logger
	quiet   bool
	json    bool
	timeout time.Duration
}

func main() {
	root := &cobra.Command{
		Use:   "upnpcat",
		Short: "Browse and stream from DLNA media servers",
	}

	var (
		configPath string
		timeout    time.Duration
		quiet      bool
		jsonOut    bool
		verbose    bool
	)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log := newLogger(verbose)
		service := core.New(cfg.Engine(), nil, nil, log)
		for _, entry := range cfg.Servers {
			service.AddServer(entry.IP, entry.Port, entry.ControlURL, entry.Name)
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			log:     log,
			quiet:   quiet,
			json:    jsonOut,
			timeout: timeout,
		}))
		return nil
	}

	root.AddCommand(discoverCommand())
	root.AddCommand(serversCommand())
	root.AddCommand(addCommand())
	root.AddCommand(wakeCommand())
	root.AddCommand(lsCommand())
	root.AddCommand(treeCommand())
	root.AddCommand(catCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(stopCommand())
	root.AddCommand(seturiCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// resolveServer picks a registered server by name, ip or index. With an
// empty selector an empty registry triggers discovery first; a single
// registered server is used as-is.
func (a *app) resolveServer(ctx context.Context, selector string) (dlna.MediaServer, error) {
	if a.service.ServerCount() == 0 {
		if err := a.discover(ctx, dlna.ClassMediaServer, 0); err != nil {
			return dlna.MediaServer{}, err
		}
	}
	servers := a.service.Servers()
	if selector == "" {
		if len(servers) == 1 {
			return servers[0], nil
		}
		return dlna.MediaServer{}, fmt.Errorf("%d servers known, pick one with --server", len(servers))
	}
	if idx, err := strconv.Atoi(selector); err == nil {
		if srv, ok := a.service.ServerInfo(idx); ok {
			return srv, nil
		}
		return dlna.MediaServer{}, fmt.Errorf("no server at index %d", idx)
	}
	var matches []dlna.MediaServer
	for _, srv := range servers {
		if srv.IP == selector || strings.Contains(strings.ToLower(srv.FriendlyName), strings.ToLower(selector)) {
			matches = append(matches, srv)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return dlna.MediaServer{}, fmt.Errorf("no server matches %q", selector)
	default:
		return dlna.MediaServer{}, fmt.Errorf("%q is ambiguous, %d servers match", selector, len(matches))
	}
}

// discover runs SSDP discovery with a spinner on interactive output.
func (a *app) discover(ctx context.Context, class dlna.ServiceClass, wait time.Duration) error {
	var spinner *pterm.SpinnerPrinter
	if !a.quiet && !a.json {
		spinner, _ = pterm.DefaultSpinner.Start("Searching for media servers")
	}
	_, err := a.service.Discover(ctx, class, wait)
	if spinner != nil {
		if err != nil {
			spinner.Fail("No servers found")
		} else {
			spinner.Success(fmt.Sprintf("Found %d server(s)", a.service.ServerCount()))
		}
	}
	return err
}
