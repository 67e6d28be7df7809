// Package output renders command results to stdout, either as aligned
// human-readable tables or as JSON.
package output

// Printer renders output to stdout.
type Printer interface {
	Print(v any) error
}
