package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/comparaholic/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, err := openSQLite(cfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		logger.Info("migrations applied", zap.String("path", cfg.Storage.Path))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Import a hosted-backend JSON export into the sqlite database",
	Long: `Imports profiles, user_form_responses and visitor_submissions from a
JSON export. Existing rows with the same keys are updated; claimed visitor
rows keep their claim.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		store, conn, err := openSQLite(cfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		rep, err := ImportSnapshot(cmd.Context(), f, store, logger)
		if err != nil {
			return err
		}
		logReport(logger, rep)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <category>",
	Short: "Delete every submission of a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := services.ParseCategory(args[0])
		if err != nil {
			return err
		}
		store, conn, err := openSQLite(cfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		n, err := store.ClearCategory(cmd.Context(), cat)
		if err != nil {
			return err
		}
		if err := store.AddAudit(cmd.Context(), services.AuditEntry{
			Time: time.Now().UTC(), Actor: "cli", Action: "results.clear", Target: string(cat), Note: strconv.Itoa(n) + " rows",
		}); err != nil {
			logger.Warn("audit clear", zap.Error(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d submissions from %s\n", n, cat)
		return nil
	},
}
