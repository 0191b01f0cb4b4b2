package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage the saved session",
	}
	cmd.AddCommand(showSessionCmd())
	cmd.AddCommand(statsSessionCmd())
	cmd.AddCommand(historySessionCmd())
	cmd.AddCommand(clearSessionCmd())
	cmd.AddCommand(stopSessionCmd())
	cmd.AddCommand(exportSessionCmd())
	cmd.AddCommand(importSessionCmd())
	cmd.AddCommand(refreshPricesCmd())
	return cmd
}

func showSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			current := a.Sessions().Current()
			if current == nil {
				fmt.Println("No active session.")
				return nil
			}
			a.View().UpdateSessionInfo(current)
			return nil
		},
	}
}

func statsSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.Sessions().Statistics()
			if err != nil {
				return err
			}
			fmt.Printf("Total cards:  %d\n", stats.TotalCards)
			fmt.Printf("Unique cards: %d\n", stats.UniqueCards)
			fmt.Printf("Total value:  $%.2f\n", stats.TotalValue)

			rarities := make([]string, 0, len(stats.Rarities))
			for r := range stats.Rarities {
				rarities = append(rarities, r)
			}
			sort.Strings(rarities)
			for _, r := range rarities {
				fmt.Printf("  %s: %d\n", r, stats.Rarities[r])
			}
			return nil
		},
	}
}

func historySessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List archived sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			history := a.Sessions().History()
			if len(history) == 0 {
				fmt.Println("No archived sessions.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSET\tCARDS\tVALUE")
			for _, s := range history {
				fmt.Fprintf(w, "%s\t%s\t%d\t$%.2f\n",
					s.StartTime.Format("2006-01-02 15:04"), s.SetName, s.TotalCards, s.TotalValue)
			}
			return w.Flush()
		},
	}
}

func clearSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every card from the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Sessions().ClearSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Session cleared.")
			return nil
		},
	}
}

func stopSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Archive the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Sessions().StopSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Session archived.")
			return nil
		},
	}
}

func exportSessionCmd() *cobra.Command {
	var format string
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current session as JSON or CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			payload, err := a.Sessions().ExportSession(format)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(payload)
				return err
			}
			if err := os.WriteFile(out, payload, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Printf("Exported session to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format (json, csv)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	return cmd
}

func importSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a previously exported session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			s, err := a.Sessions().ImportSession(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Printf("Imported session for %s: %d cards, $%.2f\n", s.SetName, s.TotalCards, s.TotalValue)
			return nil
		},
	}
}

func refreshPricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-prices",
		Short: "Refetch prices for every card in the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return a.RefreshAllPricing(cmd.Context())
		},
	}
}
