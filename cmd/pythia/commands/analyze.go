package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/pipeline"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// analyzeCmd runs the full pipeline once for a single instrument
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "단일 종목 분석 실행",
	Long: `지정한 종목에 대해 3단계 파이프라인을 1회 실행하고 결과를 출력합니다.

Example:
  go run ./cmd/pythia analyze --instrument "KRX|005930" --name 삼성전자 --symbol 005930 --type swing`,
	RunE: runAnalyze,
}

var (
	analyzeInstrument string
	analyzeName       string
	analyzeSymbol     string
	analyzeType       string
	analyzeUser       string
	analyzePlan       string
	analyzePrice      float64
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeInstrument, "instrument", "", "instrument key (EXCHANGE|SYMBOL)")
	analyzeCmd.Flags().StringVar(&analyzeName, "name", "", "stock name")
	analyzeCmd.Flags().StringVar(&analyzeSymbol, "symbol", "", "stock symbol")
	analyzeCmd.Flags().StringVar(&analyzeType, "type", "swing", "analysis type (swing|intraday)")
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "cli", "requesting user id")
	analyzeCmd.Flags().StringVar(&analyzePlan, "plan", "pro", "plan name (free|pro)")
	analyzeCmd.Flags().Float64Var(&analyzePrice, "price", 0, "current price override (0 = last close)")
	analyzeCmd.MarkFlagRequired("instrument")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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

	symbol := analyzeSymbol
	if symbol == "" {
		if parts := strings.SplitN(analyzeInstrument, "|", 2); len(parts) == 2 {
			symbol = parts[1]
		}
	}

	fmt.Printf("=== Analyzing %s (%s) ===\n", analyzeInstrument, analyzeType)
	start := time.Now()

	result, err := rt.orchestrator.RequestAnalysis(context.Background(), pipeline.Request{
		InstrumentKey: analyzeInstrument,
		StockName:     analyzeName,
		StockSymbol:   symbol,
		CurrentPrice:  analyzePrice,
		Type:          contracts.AnalysisType(analyzeType),
		UserID:        analyzeUser,
		Plan:          analyzePlan,
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	fmt.Printf("\nStatus: %s (%.1fs)\n", result.Status, time.Since(start).Seconds())
	printRecord(result.Record)
	return nil
}

func printRecord(rec *contracts.AnalysisRecord) {
	if rec == nil {
		return
	}

	fmt.Printf("Record: %s [%s]\n", rec.InstrumentKey, rec.Status)
	if rec.Status == contracts.StatusFailed {
		fmt.Printf("Failure: %s\n", rec.FailureReason)
		return
	}

	if s := rec.Strategy(); s != nil {
		fmt.Printf("\nStrategy: %s (%s)\n", s.Type, s.Archetype)
		if s.Type.IsDirectional() {
			fmt.Printf("  Entry:  %.2f\n", s.Entry)
			fmt.Printf("  Target: %.2f\n", s.Target)
			fmt.Printf("  Stop:   %.2f\n", s.StopLoss)
			fmt.Printf("  R/R:    %.2f\n", s.RiskReward)
		}
		fmt.Printf("  Score:  %.3f (%s), risk %s\n", s.Score, s.ScoreBand, s.RiskMeter)
		fmt.Printf("  Action: %s\n", s.Actionability)
	}
	if rec.Data != nil {
		gate, _ := json.Marshal(rec.Data.OrderGate)
		fmt.Printf("\nOrder gate: %s\n", gate)
	}
	fmt.Printf("Valid until: %s\n", rec.ValidUntil.Format(time.RFC3339))
}
