// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is populated by make during build.
var version string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := NewRootCmd(viper.New())
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}
