package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the events and processed_events tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)
			log.Info().Str("db_path", cfg.DBPath).Msg("schema up to date")
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var (
		strategy string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   `classify "<text>"`,
		Short: "Print the intent tag the pipeline would assign to a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strategy != "" {
				cfg.ClassifierStrategy = strings.ToLower(strategy)
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}
			c := newClassifier(cfg, provider)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			tag, err := c.Classify(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tag)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "heuristic, generative or auto (default from CLASSIFIER_STRATEGY)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "deadline for a generative classification")
	return cmd
}
