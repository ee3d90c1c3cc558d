package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mxload",
		Short:         "mxload: synthetic load generator for Matrix homeservers",
		Long:          "mxload drives thousands of simulated chat users against a Matrix homeserver. A master process partitions the user roster across workers and collects access tokens; workers run registration, room setup or full chat scenarios.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.toml (default: search . and the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newMasterCmd(opts),
		newWorkerCmd(opts),
	)

	return rootCmd
}

type rootOptions struct {
	configPath string
	verbose    bool
}
