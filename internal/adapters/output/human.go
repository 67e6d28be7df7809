package output

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// ServersOutput carries the server registry listing.
type ServersOutput struct {
	Servers []dlna.MediaServer `json:"servers"`
}

// ListingOutput carries one browse page.
type ListingOutput struct {
	Server    string             `json:"server"`
	ObjectID  string             `json:"objectId"`
	Objects   []dlna.MediaObject `json:"objects"`
	Truncated bool               `json:"truncated"`
}

// TreeOutput carries a depth-limited recursive listing. Lines are
// prerendered by the walker so printing stays order-preserving.
type TreeOutput struct {
	Lines []TreeLine `json:"lines"`
}

// TreeLine is one rendered tree entry.
type TreeLine struct {
	Depth  int              `json:"depth"`
	Object dlna.MediaObject `json:"object"`
}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case ServersOutput:
		return printServers(data)
	case ListingOutput:
		return printListing(data)
	case TreeOutput:
		return printTree(data)
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printServers(result ServersOutput) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tIP\tPORT\tCONTROL_URL"); err != nil {
		return err
	}
	for _, srv := range result.Servers {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", srv.FriendlyName, srv.IP, srv.Port, srv.ControlURL)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printListing(result ListingOutput) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tTYPE\tSIZE\tARTIST\tALBUM\tID"); err != nil {
		return err
	}
	for _, obj := range result.Objects {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			obj.Name, objectType(obj), objectSize(obj), obj.Artist, obj.Album, obj.ID)
		if err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if result.Truncated {
		_, err := fmt.Fprintln(os.Stdout, "(listing truncated, raise browse.max_entries or page with --start)")
		return err
	}
	return nil
}

func printTree(result TreeOutput) error {
	for _, line := range result.Lines {
		indent := strings.Repeat("  ", line.Depth)
		_, err := fmt.Fprintf(os.Stdout, "%s%s%s\n", indent, line.Object.Name, treeSuffix(line.Object))
		if err != nil {
			return err
		}
	}
	return nil
}

func treeSuffix(obj dlna.MediaObject) string {
	if obj.IsDirectory {
		return "/"
	}
	return ""
}

func objectType(obj dlna.MediaObject) string {
	if obj.IsDirectory {
		return "dir"
	}
	return obj.FileType.String()
}

// objectSize renders a directory's child count, a file's byte size, or
// a question mark when the server reported none.
func objectSize(obj dlna.MediaObject) string {
	if obj.SizeMissing {
		return "?"
	}
	return fmt.Sprintf("%d", obj.Size)
}
