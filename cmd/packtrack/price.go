package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ygopack/packtrack/internal/service"
)

func priceCmd() *cobra.Command {
	var (
		cardNumber string
		rarity     string
		artVariant string
		refresh    bool
	)

	cmd := &cobra.Command{
		Use:   "price [card name]",
		Short: "Look up TCGplayer prices for a card",
		Example: `  packtrack price "Blue-Eyes White Dragon" --rarity "Ultra Rare"
  packtrack price --number LOB-001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			if name == "" && cardNumber == "" {
				return fmt.Errorf("provide a card name or --number")
			}

			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result := a.CheckPrice(cmd.Context(), service.PriceRequest{
				CardName:     name,
				CardNumber:   cardNumber,
				Rarity:       rarity,
				ArtVariant:   artVariant,
				ForceRefresh: refresh,
			})
			if result == nil {
				return fmt.Errorf("price lookup failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cardNumber, "number", "", "card number, e.g. LOB-001")
	cmd.Flags().StringVar(&rarity, "rarity", "", "printed rarity")
	cmd.Flags().StringVar(&artVariant, "art", "", "art variant")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the service cache")
	return cmd
}
