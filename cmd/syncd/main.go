package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foldersync/syncengine/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "syncd",
	Short:   "Local-cloud file-tree sync daemon",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	home, _ := os.UserHomeDir()
	defaultHome := filepath.Join(home, ".syncd")

	rootCmd.PersistentFlags().StringP("home", "H", defaultHome, "syncd state directory (configs, caches, debris)")
	rootCmd.PersistentFlags().String("config", "", "explicit path to a syncd config file (defaults to <home>/config.json)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newEnableCmd())
	rootCmd.AddCommand(newDisableCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newRunCmd())
}

func main() {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	home, _ := cmd.Flags().GetString("home")
	configPath, _ := cmd.Flags().GetString("config")

	viper.SetEnvPrefix("SYNCD")
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(home)
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
