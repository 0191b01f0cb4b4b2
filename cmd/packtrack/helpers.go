package main

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"github.com/ygopack/packtrack/internal/app"
	"github.com/ygopack/packtrack/internal/service"
	"github.com/ygopack/packtrack/internal/view"
	"github.com/ygopack/packtrack/internal/voice"
)

// newApp assembles the application from viper config. A non-nil recognizer
// enables the typed-input voice path; commands that never listen pass nil.
func newApp(ctx context.Context, recognizer service.Recognizer) (*app.App, error) {
	cfg := app.Config{
		DBPath:                viper.GetString("storage.db-path"),
		DataDir:               viper.GetString("storage.data-dir"),
		APIBaseURL:            viper.GetString("api.url"),
		RestrictedImageHost:   viper.GetString("images.restricted-host"),
		ImageProxyPrefix:      viper.GetString("images.proxy-prefix"),
		MaxImageMemoryEntries: viper.GetInt("images.max-memory-entries"),
	}
	return app.New(ctx, cfg, app.Options{
		View:       view.NewTerminal(os.Stdin, os.Stdout),
		Recognizer: recognizer,
		Probe:      voice.StaticProbe{State: service.PermissionGranted},
	})
}

// stdinRecognizer treats each line typed on standard input as one utterance.
func stdinRecognizer() service.Recognizer {
	return voice.NewReaderRecognizer(os.Stdin)
}
