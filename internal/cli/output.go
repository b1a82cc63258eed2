package cli

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// printer writes a command result as JSON or as a line of text.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(cmd *cobra.Command, format string) printer {
	return printer{format: format, w: cmd.OutOrStdout()}
}

func (p printer) result(v any, text string) error {
	if p.format == "json" {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(p.w, text)
	return err
}
