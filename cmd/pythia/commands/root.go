package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pythia",
	Short: "Pythia - LLM 기반 종목별 매매 전략 추천 시스템",
	Long: `Pythia Unified CLI

3단계 완성 파이프라인(Preflight → Skeleton → Finalize)으로
종목별 매매 전략을 생성하고 점수화합니다.

Usage:
  go run ./cmd/pythia [command]

Examples:
  go run ./cmd/pythia api
  go run ./cmd/pythia analyze --instrument "KRX|005930" --type swing
  go run ./cmd/pythia scheduler
  go run ./cmd/pythia cleanup`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
