package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func voiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Voice input diagnostics",
	}
	cmd.AddCommand(voiceTestCmd())
	return cmd
}

func voiceTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check the recognition pipeline with one typed line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), stdinRecognizer())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			fmt.Println("Type a card name and press enter:")
			result, err := a.Voice().TestRecognition(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Recognized: %q (confidence %.0f%%)\n", result.Transcript, result.Confidence*100)
			return nil
		},
	}
}
