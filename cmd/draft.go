package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/servio-ai/prospector-cli/internal/outreach"
)

var draftCmd = &cobra.Command{
	Use:   "draft <lead-id>",
	Short: "Draft an outreach message for a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		chName, _ := cmd.Flags().GetString("channel")
		channel, err := outreach.ParseChannel(chName)
		if err != nil {
			return err
		}
		useAI, _ := cmd.Flags().GetBool("ai")

		drafter, err := initDrafter(useAI)
		if err != nil {
			return err
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, err := resolveLeadID(ctx, svc, args[0])
		if err != nil {
			return err
		}
		lead, err := svc.Lead(ctx, id)
		if err != nil {
			return eris.Wrap(err, "draft")
		}

		d, err := drafter.Draft(ctx, *lead, channel, useAI)
		if err != nil {
			return eris.Wrap(err, "draft")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, d)
		}
		if d.Subject != "" {
			fmt.Fprintf(os.Stdout, "Subject: %s\n\n", d.Subject)
		}
		fmt.Fprintln(os.Stdout, d.Body)
		fmt.Fprintf(os.Stderr, "(%s draft via %s)\n", d.Channel, d.Origin)
		return nil
	},
}

func init() {
	draftCmd.Flags().String("channel", string(outreach.ChannelEmail), "email or whatsapp")
	draftCmd.Flags().Bool("ai", false, "let the AI model rewrite the template draft")
	draftCmd.Flags().Bool("json", false, "print the draft as JSON")
	rootCmd.AddCommand(draftCmd)
}
