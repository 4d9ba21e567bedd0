package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/tallysync/internal/config"
	"github.com/dvloznov/tallysync/internal/logger"
)

var (
	cfgFile     string
	secretsFile string
	verbose     bool

	cfg     *config.Config
	secrets *config.Secrets
	log     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tallysync",
	Short: "Render bank statements as Tally vouchers and deliver them to a connector",
	Long: `tallysync renders extracted bank statements (JSON or XLSX) as Tally
voucher XML and delivers documents to a desktop connector.

Example Usage:
  tallysync render statement.json -o vouchers.xml
  tallysync send vouchers.xml --url https://example.trycloudflare.com
  tallysync status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		log = logger.NewWithLevel(level)

		var err error
		cfg, secrets, err = config.Load(config.Options{
			ConfigFile:  cfgFile,
			SecretsFile: secretsFile,
			DotEnvFile:  ".env",
		}, log)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&secretsFile, "secrets", "secrets.ejson", "ejson secrets file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(renderCmd, sendCmd, statusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
