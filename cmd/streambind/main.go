package main

import (
	"log/slog"
	"os"

	"github.com/memohai/streambind/internal/cli"
	"github.com/memohai/streambind/internal/logger"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		logger.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}
