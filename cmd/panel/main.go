package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/yannaing86tt/ssh-panel/cmd/panel/commands"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		commands.RunPanel(os.Args[2:], logger)
	case "init":
		commands.Init(os.Args[2:], logger)
	case "hashpass":
		commands.HashPass(os.Args[2:], logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: panel <command> [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run       Start the account panel server")
	fmt.Fprintln(os.Stderr, "  init      Generate a starter config file")
	fmt.Fprintln(os.Stderr, "  hashpass  Hash an API token for the config file")
}
