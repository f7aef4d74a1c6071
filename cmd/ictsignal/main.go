// Command ictsignal generates ICT trade signals.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"ict-signals/internal/cli"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
