package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pythia/backend/internal/scheduler"
	"github.com/wonny/pythia/backend/internal/scheduler/jobs"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// schedulerCmd runs the background job scheduler
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "백그라운드 작업 스케줄러 시작",
	Long: `예약 작업 스케줄러를 시작합니다.

Jobs:
  scheduled_release - 예약 공개 시각이 지난 완료 레코드 공개 (장중 5분 간격)
  record_cleanup    - 보존 기간이 지난 실패 레코드 삭제 (매일 03:30)

Example:
  go run ./cmd/pythia scheduler`,
	RunE: runScheduler,
}

var cleanupRetentionHours int

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().IntVar(&cleanupRetentionHours, "retention-hours", 72, "failed record retention in hours")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Pythia Scheduler ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, rdb, err := connect(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if rdb != nil {
		defer rdb.Close()
	}

	rt, err := buildRuntime(cfg, log, db, rdb)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	retention := time.Duration(cleanupRetentionHours) * time.Hour

	if err := sched.AddJob(jobs.NewReleaseJob(rt.repo, log)); err != nil {
		return err
	}
	if err := sched.AddJob(jobs.NewCleanupJob(rt.repo, retention, log)); err != nil {
		return err
	}

	sched.Start()
	fmt.Println("\n✅ Scheduler running. Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}
