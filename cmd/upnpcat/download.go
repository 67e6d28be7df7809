package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/upnpcat/internal/core"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

func catCommand() *cobra.Command {
	var (
		server    string
		outPath   string
		unbounded bool
	)

	cmd := &cobra.Command{
		Use:   "cat <directory-id> <item>",
		Short: "Stream an item's content to stdout or a file",
		Long: "Lists the directory, picks the item by name or object id and " +
			"streams its content. Items without a declared size are refused " +
			"unless --unbounded is given.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			srv, err := app.resolveServer(ctx, server)
			if err != nil {
				return err
			}
			obj, err := findItem(ctx, app, srv, args[0], args[1])
			if err != nil {
				return err
			}

			var dst io.Writer = os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				dst = f
			}

			sess, err := app.service.StartDownload(ctx, obj, core.DownloadOptions{Unbounded: unbounded})
			if err != nil {
				return err
			}
			defer sess.Stop()

			n, err := sess.Copy(dst)
			if err != nil {
				return fmt.Errorf("after %d bytes: %w", n, err)
			}
			if !app.quiet && outPath != "" {
				fmt.Fprintf(os.Stderr, "%s: %d bytes\n", outPath, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "server name, ip or index")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&unbounded, "unbounded", false, "allow items with unknown or oversized length")

	return cmd
}

// findItem browses directoryID and matches selector against object ids
// first, then names.
func findItem(ctx context.Context, app *app, srv dlna.MediaServer, directoryID, selector string) (dlna.MediaObject, error) {
	result, err := app.service.Browse(ctx, srv, directoryID, 0, 0)
	if err != nil {
		return dlna.MediaObject{}, err
	}
	for _, obj := range result.Objects {
		if obj.ID == selector {
			return obj, nil
		}
	}
	for _, obj := range result.Objects {
		if obj.Name == selector {
			return obj, nil
		}
	}
	return dlna.MediaObject{}, fmt.Errorf("no item %q in directory %s", selector, directoryID)
}
