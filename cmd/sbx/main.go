package main

import (
	"log/slog"
	"os"

	"github.com/darrenldl/blockyarchive-sub000/internal/cli"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("SBX_DEBUG") != "" {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c, err := cli.NewCLI(log, os.Args[1:])
	if err != nil {
		log.Error("error creating CLI", "error", err)
		os.Exit(1)
		return
	}

	code, err := c.Run()
	if err != nil {
		log.Error("error running CLI", "error", err)
		os.Exit(1)
	}

	os.Exit(code)
}
