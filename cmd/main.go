package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	err := runner.command().Run(context.Background(), os.Args)
	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close resources", "error", cerr)
	}
	if err == nil {
		return
	}

	if link, ok := services.AuthLinkOf(err); ok {
		logger.Error("authorization required", "link", link)
		os.Exit(1)
	}
	if errors.Is(err, shared.ErrNotImplemented) {
		logger.Warn("not implemented")
		os.Exit(0)
	}
	logger.Fatalf("application error: %v", err)
}
