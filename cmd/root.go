package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/urcu/cmd/perf"
	"github.com/ValentinKolb/urcu/cmd/torture"
	"github.com/ValentinKolb/urcu/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "urcu",
		Short: "user-space read-copy-update",
		Long: fmt.Sprintf(`urcu (v%s)

A user-space read-copy-update library written in Go: grace period detection,
deferred reclamation and the concurrent containers built on top of them
(rcu list, lock-free hash table, wait-free and lock-free queues and stacks).

This tool stress tests and benchmarks the library.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of urcu",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("urcu v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(torture.TortureCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("Log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
