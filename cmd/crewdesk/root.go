package main

import (
	"context"
	"os"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "crewdesk",
	Short: "CrewDesk — AI customer support engine",
	Long:  `CrewDesk answers customer conversations from an ingested knowledge base and hands off to humans when it should not answer alone.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
