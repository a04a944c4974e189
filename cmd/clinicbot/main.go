package main

import (
	"fmt"
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/clinicbot/internal/cli"
)

func main() {
	// Restart on binary rebuilds during development.
	if os.Getenv("CLINICBOT_DEV") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "clinicbot:", err)
		os.Exit(1)
	}
}
