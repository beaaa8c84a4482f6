package main

import (
	"log/slog"
	"os"

	"github.com/matiquelmec/tarjetas-server/internal/app"
)

func main() {
	if err := app.Run(nil, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
