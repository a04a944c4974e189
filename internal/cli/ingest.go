package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Extract booking details from documents and print the outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			files, err := readDocuments(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			conv := "ingest-" + uuid.New().String()
			defer eng.assistant.Reset(ctx, conv)

			out := cmd.OutOrStdout()
			res, err := eng.assistant.Upload(ctx, conv, "cli", files)
			printSkipped(out, res)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"ingested":        res.Ingested,
					"bookingDocument": res.BookingDocument,
					"response":        res.Reply.Text,
					"state":           eng.assistant.State(conv),
				})
			}

			fmt.Fprintln(out, res.Reply.Text)
			state := eng.assistant.State(conv)
			if len(state.Missing) > 0 {
				fmt.Fprintf(out, "\nStill missing: %s\n", strings.Join(state.Missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
