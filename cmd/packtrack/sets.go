package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ygopack/packtrack/internal/model"
)

func setsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "Browse the card set catalog",
	}
	cmd.AddCommand(listSetsCmd())
	cmd.AddCommand(searchSetsCmd())
	cmd.AddCommand(refreshSetsCmd())
	return cmd
}

func listSetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known card sets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return printSets(a.Sessions().Sets())
		},
	}
}

func searchSetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search card sets by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if a.Prices() == nil {
				return fmt.Errorf("set search requires the pricing service; set --api-url")
			}
			sets, err := a.Prices().SearchSets(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printSets(sets)
		},
	}
}

func refreshSetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refetch the set catalog from the pricing service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sets, err := a.Sessions().RefreshSets(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Refreshed %d sets\n", len(sets))
			return nil
		},
	}
}

func printSets(sets []model.CardSet) error {
	if len(sets) == 0 {
		fmt.Println("No card sets known. Run 'packtrack sets refresh' with --api-url set.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tCARDS")
	for _, s := range sets {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.Code, s.Name, s.CardCount)
	}
	return w.Flush()
}
