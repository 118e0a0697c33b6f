// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Azure/azure-netns-inspect/configuration"
	"github.com/Azure/azure-netns-inspect/containers"
	"github.com/Azure/azure-netns-inspect/inspect"
	"github.com/Azure/azure-netns-inspect/log"
	"github.com/Azure/azure-netns-inspect/netlink"
	"github.com/Azure/azure-netns-inspect/netns"
	"github.com/Azure/azure-netns-inspect/render"
)

// NewRootCmd returns the netns-inspect command. Flags can also be set through
// NETNS_INSPECT_* environment variables or a config file.
func NewRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "netns-inspect",
		Short:        "Lists the links of every network namespace and the containers that own them",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initCommandFlags(v, cmd)
			if path := v.GetString(configuration.FlagConfig); path != "" {
				return configuration.ReadFile(v, path)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Load(v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return run(cmd.Context(), cfg, out, cmd.ErrOrStderr(), isTerminal(out))
		},
	}

	d := configuration.DefaultConfig
	f := rootCmd.Flags()
	f.String(configuration.FlagPrimaryNetnsRoot, d.PrimaryNetnsRoot, "primary namespace registry root")
	f.String(configuration.FlagAltNetnsRoot, d.AltNetnsRoot, "container runtime namespace registry root")
	f.String(configuration.FlagContainerDataRoot, d.ContainerDataRoot, "container runtime data root")
	f.String(configuration.FlagBackend, d.Backend, "link enumeration backend [socket,vishvananda]")
	f.Duration(configuration.FlagEnumerateTimeout, d.EnumerateTimeout, "time limit for listing the links of one namespace")
	f.Bool(configuration.FlagIncludeDefault, d.IncludeDefault, "list the links of the host namespace as \"default\"")
	f.Bool(configuration.FlagAbortOnRestoreFailure, d.AbortOnRestoreFailure, "stop when the original namespace cannot be restored")
	f.StringP(configuration.FlagOutput, "o", d.Output, "output format [table,json]")
	rootCmd.PersistentFlags().StringP(configuration.FlagLogLevel, "v", d.LogLevel, "log level [debug,info,warn,error]")
	rootCmd.PersistentFlags().String(configuration.FlagLogEncoding, d.LogEncoding, "log encoding [console,json,logfmt]")
	rootCmd.PersistentFlags().String(configuration.FlagConfig, "", "config file")

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version
			if v == "" {
				v = "unknown"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}

// initCommandFlags binds the flags of cmd and its parents to v, so that
// environment variables and config file keys of the same name apply.
func initCommandFlags(v *viper.Viper, cmd *cobra.Command) {
	v.SetEnvPrefix(configuration.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		err := v.BindPFlag(flag.Name, flag)
		cobra.CheckErr(err)
	})
}

func run(ctx context.Context, cfg *configuration.Config, stdout, stderr io.Writer, useColor bool) error {
	logger, cleanup, err := log.New(&log.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Debug("Loaded config", zap.Any("config", cfg))

	enumerator, err := netlink.NewEnumerator(cfg.Backend, logger)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	client := netns.NewClient(netns.NewRegistry(fs, cfg.PrimaryNetnsRoot, cfg.AltNetnsRoot), logger)
	dir := containers.NewDirectory(fs, cfg.ContainerDataRoot, logger)

	inspector := inspect.New(client, enumerator, dir, inspect.Options{
		EnumerateTimeout:      cfg.EnumerateTimeout,
		IncludeDefault:        cfg.IncludeDefault,
		AbortOnRestoreFailure: cfg.AbortOnRestoreFailure,
	}, logger)

	report, err := inspector.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "inspection failed")
	}

	return render.NewPrinter(stdout, stderr, useColor).Print(report, cfg.Output)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
