package main

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

// Exit codes reported to the shell
const (
	exitOK            = 0
	exitFailure       = 1
	exitNoInput       = 2
	exitInvalidConfig = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, stocksync.ErrNoValidInput):
		return exitNoInput
	case errors.Is(err, stocksync.ErrInvalidConfig), errors.Is(err, errInvalidConfig):
		return exitInvalidConfig
	}
	return exitFailure
}
