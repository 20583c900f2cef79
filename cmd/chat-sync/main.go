// ABOUTME: Entry point for chat-sync, a terminal client for the chat server
// ABOUTME: Wires config, logging and the sync engine behind cobra subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/2389/chat-sync/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "chat-sync",
	Short: "Terminal client that keeps a live copy of your conversations",
	Long: `chat-sync signs in to a chat server, loads your conversations over REST
and keeps them current from the server's push channel.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file path (default is $XDG_CONFIG_HOME/chat-sync/config.yaml)")

	rootCmd.AddCommand(runCmd, loginCmd, conversationsCmd, historyCmd, profileCmd)
}

// getConfigPath returns the path to the client config file.
// Priority: --config flag > CHAT_SYNC_CONFIG env var > XDG_CONFIG_HOME/chat-sync/config.yaml > ~/.config/chat-sync/config.yaml
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if envPath := os.Getenv("CHAT_SYNC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chat-sync", "config.yaml")
}

// getDataPath returns the directory holding the session cache.
// Priority: XDG_DATA_HOME/chat-sync > ~/.local/share/chat-sync
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chat-sync")
}

// loadConfig reads the config file. CHAT_SYNC_BASE_URL alone is enough when
// no file exists.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		base := os.Getenv("CHAT_SYNC_BASE_URL")
		if base == "" {
			return nil, fmt.Errorf("no config at %s and CHAT_SYNC_BASE_URL is not set", path)
		}
		cfg = config.Default(base)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid CHAT_SYNC_BASE_URL: %w", err)
		}
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(getDataPath(), "session.db")
	}
	return cfg, nil
}

func main() {
	// A missing .env is normal.
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
