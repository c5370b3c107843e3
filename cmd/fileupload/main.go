package main

import (
	"log/slog"
	"os"

	"fileupload/internal/cli"
)

func main() {
	// Pipeline logs go to stderr so stdout stays machine readable.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	os.Exit(cli.Execute())
}
