package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/pythia/backend/internal/api"
	"github.com/wonny/pythia/backend/internal/api/handlers"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                           - Health check
  POST /api/analysis                     - 분석 요청 (캐시/단일비행/쿼터 적용)
  GET  /api/analysis/{instrument}/{type} - 진행 상태/결과 조회
  GET  /api/quota                        - 쿼터 조회 (비소진)
  GET  /ws/notifications                 - 완료 알림 WebSocket

Example:
  go run ./cmd/pythia api
  go run ./cmd/pythia api --port 8091`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Pythia API Server ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log := logger.New(cfg)
	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

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

	analysisHandler := handlers.NewAnalysisHandler(rt.orchestrator, log)
	quotaHandler := handlers.NewQuotaHandler(rt.orchestrator, log)
	healthHandler := handlers.NewHealthHandler(db, log)

	router := api.NewRouter(analysisHandler, quotaHandler, healthHandler, rt.hub, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/analysis")
	fmt.Println("  GET  /api/analysis/{instrument}/{type}")
	fmt.Println("  GET  /api/quota")
	fmt.Println("  GET  /ws/notifications")
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
