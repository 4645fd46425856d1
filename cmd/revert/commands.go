// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"io"

	"github.com/AleutianAI/hecate-revert/pkg/ux"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	machine    bool
}

// deltasOptions are the flags of "revert deltas".
type deltasOptions struct {
	start        int64
	end          int64
	output       string
	url          string
	cacheBackend string
	cacheDir     string
	concurrency  int
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "revert",
		Short: "Compute the edits that undo a range of Hecate deltas",
		Long: `revert walks a range of Hecate deltas, fetches the history of every
feature they touched, and writes one inverse edit per feature as
line-delimited GeoJSON. Feed the output to the Hecate import pipeline
to apply the rollback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&root.configPath, "config", "",
		"Config file (default ~/.hecate/revert.yaml)")
	rootCmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "",
		"Override logging.level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&root.machine, "machine", false,
		"Plain KEY: value status lines on stderr for scripts")

	rootCmd.AddCommand(newDeltasCmd(root))
	return rootCmd
}

func newDeltasCmd(root *rootOptions) *cobra.Command {
	opts := &deltasOptions{}

	cmd := &cobra.Command{
		Use:   "deltas --start ID --end ID",
		Short: "Revert an inclusive range of deltas",
		Example: `  revert deltas --start 120 --end 125 > rollback.geojsonld
  revert deltas --start 7 --end 7 --output rollback.geojsonld --cache-backend sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeltas(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().Int64Var(&opts.start, "start", 0, "Delta ID to revert from (inclusive)")
	cmd.Flags().Int64Var(&opts.end, "end", 0, "Delta ID to revert to (inclusive)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write inverse edits to this file instead of stdout")
	cmd.Flags().StringVar(&opts.url, "url", "", "Override hecate.url")
	cmd.Flags().StringVar(&opts.cacheBackend, "cache-backend", "", "Override revert.cache_backend: badger, sqlite, memory")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "Override revert.cache_dir")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Override revert.concurrency")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printer := ux.NewPrinter(stderr, printerMode(stderr, machineFlag(rootCmd)))
		printer.ErrorBox(err.Error(), hintFor(err))
		return 1
	}
	return 0
}

func machineFlag(cmd *cobra.Command) bool {
	v, err := cmd.PersistentFlags().GetBool("machine")
	return err == nil && v
}
