// Command xao verifies referral records and generates the xao.fun assets.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xao-fun/xao-go/internal/config"
	"github.com/xao-fun/xao-go/internal/llm"
)

var (
	configPath string
	timeout    time.Duration

	// newCompleter is swapped out in tests.
	newCompleter = llm.New
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "xao",
	Short: "xao.fun referral verification and asset tools",
	Long: `xao verifies referral records with a hosted language model and
generates the static xao.fun assets (QR code and flow diagrams).

Credentials and settings come from a YAML file (--config or $XAO_CONFIG),
a .env file and the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $XAO_CONFIG)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(qrCmd)
	rootCmd.AddCommand(diagramsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
