package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/upnpcat/internal/adapters/output"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

func discoverCommand() *cobra.Command {
	var (
		class string
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search the network for media servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			var target dlna.ServiceClass
			switch class {
			case "dms":
				target = dlna.ClassMediaServer
			case "dmr":
				target = dlna.ClassMediaRenderer
			default:
				return fmt.Errorf("class must be dms or dmr, got %q", class)
			}
			if err := app.discover(ctx, target, wait); err != nil {
				return err
			}
			return app.printer.Print(output.ServersOutput{Servers: app.service.Servers()})
		},
	}

	cmd.Flags().StringVar(&class, "class", "dms", "device class to search for (dms or dmr)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "reply collection window (0 = configured default)")

	return cmd
}

func serversCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List known media servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			return app.printer.Print(output.ServersOutput{Servers: app.service.Servers()})
		},
	}
}

func addCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <ip> <port> <control-url>",
		Short: "Register a media server without discovery",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			port, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[1], err)
			}
			app.service.AddServer(args[0], uint16(port), args[2], name)
			return app.printer.Print(output.ServersOutput{Servers: app.service.Servers()})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "friendly name for the server")

	return cmd
}

func wakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wake <mac>",
		Short: "Send a wake-on-LAN packet to a sleeping server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if err := app.service.WakeServer(args[0]); err != nil {
				return err
			}
			if !app.quiet && !app.json {
				fmt.Println("wake packet sent")
			}
			return nil
		},
	}
}
