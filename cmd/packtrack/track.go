package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

func trackCmd() *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "track <set>",
		Short: "Open packs interactively, one card per line",
		Long: `Start a tracking session for a set and read card pulls from standard
input. Each line is matched against the set's catalog the same way spoken
input would be, e.g.:

  blue eyes white dragon ultra rare
  dark magician art variant 2
  option 1

Ctrl-D ends the session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			setID := strings.Join(args, " ")

			a, err := newApp(ctx, stdinRecognizer())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			current := a.Sessions().Current()
			if resume && current != nil {
				fmt.Printf("Resuming session for %s (%d cards)\n", current.SetName, current.TotalCards)
			} else {
				if _, err := a.Sessions().StartSession(ctx, setID); err != nil {
					return common.NewUserError(fmt.Sprintf("could not start a session for %q", setID), err)
				}
				a.View().UpdateSessionInfo(a.Sessions().Current())
			}

			settings := a.Settings()
			a.Voice().UpdateConfig(service.VoiceConfig{
				Language:        settings.RecognitionLanguage,
				Timeout:         time.Duration(settings.VoiceTimeoutMS) * time.Millisecond,
				MaxAlternatives: settings.MaxAlternatives,
				Continuous:      true,
			})
			if err := a.Voice().StartListening(ctx); err != nil {
				return err
			}

			// Run until input ends or the process is interrupted.
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
		loop:
			for {
				select {
				case <-ctx.Done():
					a.Voice().StopListening()
					break loop
				case <-ticker.C:
					if a.Voice().Status() != service.VoiceListening {
						break loop
					}
				}
			}

			if err := a.Sessions().SaveSession(ctx); err != nil {
				return err
			}
			if s := a.Sessions().Current(); s != nil {
				fmt.Printf("Session saved: %d cards, $%.2f\n", s.TotalCards, s.TotalValue)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "continue the saved session instead of starting fresh")
	return cmd
}
