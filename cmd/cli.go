package cmd

import (
	"time"

	"knotstore/internal/cli"

	"github.com/spf13/cobra"
)

// cliCmd represents the CLI command
var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Interactive knotstore command-line interface",
	Long: `Interactive knotstore command-line interface similar to redis-cli.

Connect to a running knotstore server and execute commands interactively
or in batch mode.

Examples:
  knotstore cli
  knotstore cli --host 127.0.0.1 --port 6380
  knotstore cli --eval "SET key value"
  knotstore cli --file commands.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunCLI(&cli.Config{
			Host:    getStringFlag(cmd, "host", "127.0.0.1"),
			Port:    getIntFlag(cmd, "port", 6380),
			Timeout: getDurationFlag(cmd, "timeout", 5*time.Second),
			Raw:     getBoolFlag(cmd, "raw"),
			Eval:    getStringFlag(cmd, "eval", ""),
			File:    getStringFlag(cmd, "file", ""),
			Pipe:    getBoolFlag(cmd, "pipe"),
		}, args)
	},
}

func init() {
	rootCmd.AddCommand(cliCmd)

	cliCmd.Flags().String("host", "127.0.0.1", "knotstore server host")
	cliCmd.Flags().IntP("port", "p", 6380, "knotstore server port")
	cliCmd.Flags().Duration("timeout", 5*time.Second, "Connection timeout")

	cliCmd.Flags().Bool("raw", false, "Use raw formatting for replies")
	cliCmd.Flags().String("eval", "", "Send specified command")
	cliCmd.Flags().String("file", "", "Execute commands from file")
	cliCmd.Flags().Bool("pipe", false, "Pipe mode - read from stdin and write to stdout")
}

func getBoolFlag(cmd *cobra.Command, name string) bool {
	if value, err := cmd.Flags().GetBool(name); err == nil {
		return value
	}
	return false
}

func getDurationFlag(cmd *cobra.Command, name string, defaultValue time.Duration) time.Duration {
	if value, err := cmd.Flags().GetDuration(name); err == nil {
		return value
	}
	return defaultValue
}
