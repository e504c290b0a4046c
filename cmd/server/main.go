package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	opts := &serveOptions{}

	serve := serveCmd(&envFile, opts)
	rootCmd := &cobra.Command{
		Use:     "satoshicheckout",
		Short:   "Bitcoin checkout backend for BTCPay Server",
		Version: Version,
		RunE:    serve.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file to load")
	opts.bindFlags(rootCmd)

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(statsCmd(&envFile))
	return rootCmd
}
