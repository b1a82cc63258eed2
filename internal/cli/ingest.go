package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ripkitten-co/procview/events"
)

type IngestOptions struct {
	*RootOptions
	ChunkSize int
}

func NewIngestCommand(root *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: root}
	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Append events from a file to the journal",
		Long: `Append events to the journal. The input is either a JSON array of events
or one event per line (NDJSON). Every event is decoded before anything is
written; events whose id is already journaled are skipped.

Examples:
  procview ingest events.json
  kubectl logs runtime-bundle | procview ingest -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0])
		},
	}
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk", 500, "events appended per statement")
	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions, path string) error {
	in := cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return wrapExit(ExitCommandError, "open input", err)
		}
		defer f.Close()
		in = f
	}
	evts, err := ReadEvents(in)
	if err != nil {
		return wrapExit(ExitFailure, "decode input", err)
	}
	if opts.ChunkSize <= 0 {
		return wrapExit(ExitCommandError, "invalid --chunk", nil)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts.Config, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	j := a.journal()
	appended := 0
	for start := 0; start < len(evts); start += opts.ChunkSize {
		end := min(start+opts.ChunkSize, len(evts))
		n, err := j.Append(ctx, evts[start:end]...)
		if err != nil {
			return wrapExit(ExitFailure, fmt.Sprintf("append events %d-%d", start, end-1), err)
		}
		appended += n
	}

	return newPrinter(cmd, opts.Format).result(
		map[string]int{"read": len(evts), "appended": appended, "skipped": len(evts) - appended},
		fmt.Sprintf("read %d events, appended %d, skipped %d already journaled", len(evts), appended, len(evts)-appended),
	)
}

// ReadEvents decodes a JSON array of events or NDJSON, one event per line.
func ReadEvents(r io.Reader) ([]events.Event, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if first == '[' {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, err
		}
		return events.DecodeBatch(data)
	}

	var out []events.Event
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		evt, err := events.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, evt)
	}
	return out, sc.Err()
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
