package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/nextbridge/nextbridge/internal/config"
)

var convertHwd = &ConvertRunner{}

type ConvertRunner struct{}

func (r *ConvertRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a config file between JSON, YAML and TOML",
		ArgsUsage: "<src> <dst>",
		Action:    r.run,
	}
}

func (r *ConvertRunner) run(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("usage: nextbridge convert <src> <dst>")
	}
	src, dst := args.Get(0), args.Get(1)

	if err := config.Convert(src, dst); err != nil {
		return fmt.Errorf("convert %s -> %s: %w", src, dst, err)
	}
	fmt.Printf("converted %s -> %s\n", src, dst)
	return nil
}
