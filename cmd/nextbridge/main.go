package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/nextbridge/nextbridge/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "nextbridge",
		Usage: "Bridge messages between chat platforms",
		Commands: []*cli.Command{
			runHwd.cmd(),
			convertHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
