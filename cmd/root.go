/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"knotstore/internal/logger"
	"knotstore/internal/server"

	"github.com/spf13/cobra"
)

const defaultReadBuffer = 256 * 1024
const defaultWriteBuffer = 0

// rootCmd represents base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "knotstore",
	Short: "A RESP-compatible in-memory key/value server with master/replica replication",
	Long: `A RESP-compatible in-memory key/value server built in Go.
Supports PING, ECHO, GET, SET (with PX expiry), INFO, REPLCONF, PSYNC and
WAIT, and one-way master to replica replication.`,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	Run: func(cmd *cobra.Command, args []string) {
		logLevel := logger.LogLevel(getStringFlag(cmd, "log-level", "info"))
		logger.Init(logLevel)

		srv := server.New(server.Config{
			Addr:        getStringFlag(cmd, "port", ":6380"),
			SlaveOf:     getStringFlag(cmd, "replicaof", ""),
			ReadBuffer:  getIntFlag(cmd, "read-buffer", defaultReadBuffer),
			WriteBuffer: getIntFlag(cmd, "write-buffer", defaultWriteBuffer),
		})

		if err := srv.Start(); err != nil {
			logger.Errorf("Failed to start server: %v", err)
			os.Exit(1)
		}

		logger.Infof("Server started on %s", srv.Addr())

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down server...")
		if err := srv.Close(); err != nil {
			logger.Errorf("Error closing server: %v", err)
		}
	},
}

// Execute adds child commands to root and sets flags appropriately.
// Called by main.main(). Only needs to happen once to rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error, fatal)")

	rootCmd.Flags().String("port", ":6380", "Server listen address")
	rootCmd.Flags().Int("write-buffer", defaultWriteBuffer, "Writer buffer size")
	rootCmd.Flags().Int("read-buffer", defaultReadBuffer, "Reader buffer size")

	rootCmd.Flags().String("replicaof", "", `Replicate from master, as "<host> <port>"`)
}

// Helper functions for flag parsing
func getStringFlag(cmd *cobra.Command, name, defaultValue string) string {
	if value, err := cmd.Flags().GetString(name); err == nil && value != "" {
		return value
	}
	return defaultValue
}

func getIntFlag(cmd *cobra.Command, name string, defaultValue int) int {
	if value, err := cmd.Flags().GetInt(name); err == nil {
		return value
	}
	return defaultValue
}
