package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	// ExitSuccess means every module confirmed (or the run had nothing to do).
	ExitSuccess = 0

	// ExitConfigError covers configuration and package loading failures.
	ExitConfigError = 1

	// ExitResolutionError covers address resolution failures: unknown names,
	// duplicate names, dependency cycles.
	ExitResolutionError = 2

	// ExitDeployFailed means the run finished but at least one module did not
	// confirm.
	ExitDeployFailed = 3

	// ExitReportError means deployment outcomes were computed but the report
	// could not be written.
	ExitReportError = 4
)

// exitCodeError carries a process exit code up through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func exitWith(code int, err error) error {
	return &exitCodeError{code: code, err: err}
}

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			return ec.code
		}
		return ExitConfigError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jayce",
		Short: "Deploy compiled Move packages to an Aptos network",
		Long: `jayce deploys sets of compiled Move packages, resolving named
addresses between them and publishing in dependency order.

Configuration (in order of priority):
  1. Command-line flags
  2. Environment variables (JAYCE_*)
  3. Config file (--config-path, TOML)
  4. Built-in defaults`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDeployCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jayce %s (built %s)\n", Version, BuildTime)
		},
	}
}
