package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/upnpcat/internal/adapters/output"
	"github.com/mikey-austin/upnpcat/internal/core"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

func lsCommand() *cobra.Command {
	var (
		server string
		start  uint32
		count  uint16
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "ls [object-id]",
		Short: "List a directory on a media server",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			srv, err := app.resolveServer(ctx, server)
			if err != nil {
				return err
			}
			objectID := "0"
			if len(args) == 1 {
				objectID = args[0]
			}
			var result dlna.BrowseResult
			if all {
				result, err = app.service.BrowseAll(ctx, srv, objectID)
			} else {
				result, err = app.service.Browse(ctx, srv, objectID, start, count)
			}
			if err != nil {
				return err
			}
			return app.printer.Print(output.ListingOutput{
				Server:    srv.FriendlyName,
				ObjectID:  objectID,
				Objects:   result.Objects,
				Truncated: result.Truncated,
			})
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "server name, ip or index")
	cmd.Flags().Uint32Var(&start, "start", 0, "starting index within the directory")
	cmd.Flags().Uint16Var(&count, "count", 0, "max entries to request (0 = configured cap)")
	cmd.Flags().BoolVar(&all, "all", false, "page through the whole directory")

	return cmd
}

func treeCommand() *cobra.Command {
	var (
		server string
		depth  int
	)

	cmd := &cobra.Command{
		Use:   "tree [object-id]",
		Short: "Recursively list directories up to a depth",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			srv, err := app.resolveServer(ctx, server)
			if err != nil {
				return err
			}
			objectID := "0"
			if len(args) == 1 {
				objectID = args[0]
			}
			var lines []output.TreeLine
			if err := walk(ctx, app.service, srv, objectID, 0, depth, &lines); err != nil {
				return err
			}
			return app.printer.Print(output.TreeOutput{Lines: lines})
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "server name, ip or index")
	cmd.Flags().IntVar(&depth, "depth", 3, "max recursion depth")

	return cmd
}

// walk lists objectID and descends into containers depth-first. Errors
// on a subdirectory abort the walk; partial trees mislead more than
// they help.
func walk(ctx context.Context, svc *core.Service, srv dlna.MediaServer, objectID string, depth, maxDepth int, lines *[]output.TreeLine) error {
	if depth >= maxDepth {
		return nil
	}
	result, err := svc.Browse(ctx, srv, objectID, 0, 0)
	if err != nil {
		return err
	}
	for _, obj := range result.Objects {
		*lines = append(*lines, output.TreeLine{Depth: depth, Object: obj})
		if obj.IsDirectory {
			if err := walk(ctx, svc, srv, obj.ID, depth+1, maxDepth, lines); err != nil {
				return err
			}
		}
	}
	return nil
}
