package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIDCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate and decode batch identifiers",
	}
	cmd.AddCommand(newIDNewCmd(a), newIDParseCmd(a))
	return cmd
}

func newIDNewCmd(a *app) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Print an identifier for now or for --at",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("at") {
				fmt.Fprintln(a.stdout, a.lc.NewID())
				return nil
			}
			t, err := parsePlanted(at, a.lc.Location())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, a.lc.GenerateID(t))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "time to encode, YYYY-MM-DD [HH:MM[:SS]]")
	return cmd
}

func newIDParseCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "parse <id>",
		Short: "Decode an identifier and show its age",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			created, ok := a.lc.ParseID(id)
			if !ok {
				return usagef("%q is not a batch identifier", id)
			}

			now := a.lc.Now()
			fmt.Fprintf(a.stdout, "Created: %s\n", created.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(a.stdout, "Age:     %d days\n", a.lc.AgeInDaysAt(id, now))
			fmt.Fprintf(a.stdout, "Label:   %s\n", a.lc.DisplayLabelAt(id, now))

			if days > 0 {
				status := a.lc.StatusAt(id, days, now)
				expected, _ := a.lc.ExpectedHarvestDate(id, days)
				fmt.Fprintf(a.stdout, "Harvest: %s\n", expected.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(a.stdout, "Phase:   %s, %d%% (%s)\n", status.Phase, status.Progress, status.Description)
				fmt.Fprintf(a.stdout, "Ready:   %t\n", a.lc.IsReadyForHarvestAt(id, days, now))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days to harvest, to also show phase and readiness")
	return cmd
}
