package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Daemonophobic/phalerum-api/internal/config"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "phalerum",
	Short: "Phalerum command and control API",
	Long: `The Phalerum API service distributes jobs to deployed agents, ingests
their output, and manages operator accounts, sessions, and agent builds.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is searched in ./config and /etc/phalerum)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "environment file (default is searched next to the config)")
}

func loadConfig() (*config.Config, error) {
	configFile := cfgFile
	if configFile == "" {
		configFile = config.FindConfigFile("phalerum")
	}
	environmentFile := envFile
	if environmentFile == "" {
		environmentFile = config.FindEnvironmentFile("phalerum")
	}

	cfg, err := config.Load(configFile, environmentFile)
	if err != nil {
		return nil, err
	}

	cfg.Log.ConfigureZerolog()
	return cfg, nil
}
