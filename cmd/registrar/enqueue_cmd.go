package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newEnqueueCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "enqueue <task-slug> [--input file|-]",
		Short: "Queue a task run with a JSON input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), inputPath)
			if err != nil {
				return err
			}
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			job, err := rt.app.Enqueuer().Enqueue(rt.ctx(cmd.Context()), args[0], input)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "JSON input file, or - for stdin")
	return cmd
}

func readInput(stdin io.Reader, path string) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	switch path {
	case "":
		return nil, nil
	case "-":
		raw, err = io.ReadAll(stdin)
	default:
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("input %q is not valid JSON", path)
	}
	return raw, nil
}
