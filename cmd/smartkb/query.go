package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youufis/SmartKB/internal/retrieval"
)

var queryCmd = &cobra.Command{
	Use:   "query [topic]",
	Short: "Ask the knowledge base a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr, false, true, true)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		events := a.pipeline.Query(cmd.Context(), retrieval.Request{Topic: strings.Join(args, " ")})
		var failed error
		for ev := range events {
			fmt.Fprint(out, ev.Delta)
			if ev.Done {
				failed = ev.Err
			}
		}
		fmt.Fprintln(out)
		return failed
	},
}
