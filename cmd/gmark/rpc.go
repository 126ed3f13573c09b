package main

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/engine"
)

const maxRequestSize = 16 << 20

func newRPCCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Serve line-delimited JSON requests on stdin",
		Long: `Reads one {"type": ..., "payload": ...} request per line and writes one
{"result": ...} or {"error": ...} response per line. Streaming requests such as
runMigration first write {"progress": ...} lines.

Request types: ` + fmt.Sprint(engine.RequestTypes()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewScanner(cmd.InOrStdin())
			in.Buffer(make([]byte, 0, 64<<10), maxRequestSize)
			out := bufio.NewWriter(cmd.OutOrStdout())

			for in.Scan() {
				line := bytes.TrimSpace(in.Bytes())
				if len(line) == 0 {
					continue
				}
				var writeErr error
				write := func(frame []byte) {
					if writeErr != nil {
						return
					}
					out.Write(frame)
					out.WriteByte('\n')
					writeErr = out.Flush()
				}
				write(a.engine.DispatchJSONStream(cmd.Context(), line, write))
				if writeErr != nil {
					return writeErr
				}
			}
			return in.Err()
		},
	}
}
