package main

import (
	"fmt"
	"log"
	"os"

	"github.com/LavaJover/shvark-settlement-service/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version    = "dev"
	configPath string
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("failed to load .env")
	}

	rootCmd := &cobra.Command{
		Use:           "settlement-service",
		Short:         "Prize-pool settlement service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (overrides "+config.ConfigPathEnv+")")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.SettlementConfig, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.ConfigPathEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("config path is not set: use --config or %s", config.ConfigPathEnv)
	}
	return config.Load(path)
}
