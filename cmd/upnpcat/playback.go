package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

func playCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start playback on a renderer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, server, dlna.ActionPlay, "")
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "renderer name, ip or index")

	return cmd
}

func pauseCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause playback on a renderer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, server, dlna.ActionPause, "")
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "renderer name, ip or index")

	return cmd
}

func stopCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop playback on a renderer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, server, dlna.ActionStop, "")
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "renderer name, ip or index")

	return cmd
}

func seturiCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "seturi <media-uri>",
		Short: "Point a renderer at a media URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, server, dlna.ActionSetURI, args[0])
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "renderer name, ip or index")

	return cmd
}

func runAction(cmd *cobra.Command, server string, action dlna.TransportAction, mediaURI string) error {
	app := fromContext(cmd)
	ctx, cancel := withTimeout(context.Background(), app.timeout)
	defer cancel()

	srv, err := app.resolveServer(ctx, server)
	if err != nil {
		return err
	}
	return app.service.TransportAction(ctx, srv, action, mediaURI)
}
