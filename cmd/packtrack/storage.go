package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ygopack/packtrack/internal/service"
)

func storageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and manage the storage tiers",
	}
	cmd.AddCommand(storageStatusCmd())
	cmd.AddCommand(storageMigrateCmd())
	cmd.AddCommand(storageClearCmd())
	return cmd
}

func storageStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active backend and stored keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			keys, err := a.Store().Keys(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Backend: %s\n", a.Store().CurrentBackend())
			fmt.Printf("Keys:    %d\n", len(keys))
			for _, k := range keys {
				fmt.Printf("  %s\n", k)
			}
			return nil
		},
	}
}

func storageMigrateCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy keys between storage backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			copied, err := a.Store().Migrate(cmd.Context(), service.BackendKind(from), service.BackendKind(to))
			if err != nil {
				return err
			}
			fmt.Printf("Migrated %d keys from %s to %s\n", copied, from, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", string(service.BackendDurable), "source backend (indexed, durable, scratch, memory)")
	cmd.Flags().StringVar(&to, "to", string(service.BackendIndexed), "target backend")
	return cmd
}

func storageClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear storage without --yes")
			}
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Store().Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Storage cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
