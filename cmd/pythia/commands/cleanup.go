package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pythia/backend/internal/store"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/database"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// cleanupCmd runs the stale-record cleanup once, outside the scheduler
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "실패 레코드 즉시 정리",
	Long: `보존 기간이 지난 실패 분석 레코드를 즉시 삭제합니다.

Example:
  go run ./cmd/pythia cleanup
  go run ./cmd/pythia cleanup --retention-hours 24`,
	RunE: runCleanup,
}

var cleanupHours int

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().IntVar(&cleanupHours, "retention-hours", 72, "failed record retention in hours")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Pythia Cleanup ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := store.NewAnalysisRepository(db.Pool)
	cutoff := time.Now().Add(-time.Duration(cleanupHours) * time.Hour)

	deleted, err := repo.DeleteExpiredFailed(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	log.WithField("deleted", deleted).Info("Cleanup finished")
	fmt.Printf("\n✅ Deleted %d stale failed records (older than %s)\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}
