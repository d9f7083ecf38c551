/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/ademuri/listening-identity/internal/collector"
	"github.com/ademuri/listening-identity/internal/provider/lastfm"
	"github.com/ademuri/listening-identity/internal/provider/spotify"
	"github.com/ademuri/listening-identity/internal/reconcile"
	"github.com/ademuri/listening-identity/internal/store"
)

var cfgFile string
var databasePath string
var providerName string
var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "listening-identity",
	Short: "Collects listening history and measures musical identity over time",
	Long: `Collects recently played tracks and top artists from Spotify or last.fm into a
local SQLite database, imports curated yearly rankings from CSV, and computes
diversity, persistence, peak years and stability over the combined history.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default is $HOME/.listening-identity.yaml)")

	rootCmd.PersistentFlags().StringVarP(
		&databasePath, "database", "d", "./listening.db", "Path to the SQLite database")
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))

	rootCmd.PersistentFlags().StringVar(
		&providerName, "provider", "spotify", "Music service to collect from (spotify or lastfm)")
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))

	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "info", "Log level (debug, info, warn, error)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log_level"))

	var spotifyClientID, spotifyClientSecret, spotifyRefreshToken string
	rootCmd.PersistentFlags().StringVar(&spotifyClientID, "spotify_client_id", "", "Spotify application client id")
	viper.BindPFlag("spotify_client_id", rootCmd.PersistentFlags().Lookup("spotify_client_id"))
	rootCmd.PersistentFlags().StringVar(&spotifyClientSecret, "spotify_client_secret", "", "Spotify application client secret")
	viper.BindPFlag("spotify_client_secret", rootCmd.PersistentFlags().Lookup("spotify_client_secret"))
	rootCmd.PersistentFlags().StringVar(&spotifyRefreshToken, "spotify_refresh_token", "", "Spotify refresh token for the listener")
	viper.BindPFlag("spotify_refresh_token", rootCmd.PersistentFlags().Lookup("spotify_refresh_token"))

	var lastFmApiKey, lastFmSecret, lastFmUser string
	rootCmd.PersistentFlags().StringVarP(
		&lastFmApiKey, "api_key", "", "", "last.fm API key")
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api_key"))
	rootCmd.PersistentFlags().StringVarP(
		&lastFmSecret, "secret", "", "", "last.fm secret")
	viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret"))
	rootCmd.PersistentFlags().StringVarP(
		&lastFmUser, "user", "u", "", "last.fm username to act on")
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))

	var aliasThreshold float64
	rootCmd.PersistentFlags().Float64Var(&aliasThreshold, "alias_threshold", reconcile.DefaultThreshold,
		"Similarity at which differently spelled artist names are joined (0 disables)")
	viper.BindPFlag("alias_threshold", rootCmd.PersistentFlags().Lookup("alias_threshold"))

	var sendgridApiKey, from string
	rootCmd.PersistentFlags().StringVar(&sendgridApiKey, "sendgrid_api_key", "", "SendGrid API key")
	viper.BindPFlag("sendgrid_api_key", rootCmd.PersistentFlags().Lookup("sendgrid_api_key"))
	rootCmd.PersistentFlags().StringVar(&from, "from", "", "From email address")
	viper.BindPFlag("from", rootCmd.PersistentFlags().Lookup("from"))
}

// initConfig reads in .env, config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Println("loading .env:", err)
		os.Exit(1)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".listening-identity" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".listening-identity")
	}

	// LISTENING_DATABASE, LISTENING_SPOTIFY_REFRESH_TOKEN, ...
	viper.SetEnvPrefix("listening")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// See https://github.com/spf13/viper/pull/852
	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		if viper.IsSet(f.Name) && viper.GetString(f.Name) != "" {
			rootCmd.Flags().Set(f.Name, viper.GetString(f.Name))
		}
	})

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(viper.GetString("log_level"))})))
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func openStore() (*store.Store, error) {
	st, err := store.New(viper.GetString("database"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

// newClient builds the configured provider and returns it with the
// top-artist windows it supports.
func newClient(ctx context.Context) (collector.Client, []string, error) {
	switch viper.GetString("provider") {
	case "spotify":
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     viper.GetString("spotify_client_id"),
			ClientSecret: viper.GetString("spotify_client_secret"),
			RefreshToken: viper.GetString("spotify_refresh_token"),
			Logger:       slog.Default(),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, spotify.Windows, nil

	case "lastfm":
		client, err := lastfm.New(lastfm.Config{
			APIKey: viper.GetString("api_key"),
			Secret: viper.GetString("secret"),
			User:   viper.GetString("user"),
			Logger: slog.Default(),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, lastfm.Windows, nil

	default:
		return nil, nil, fmt.Errorf("unknown provider %q, expected spotify or lastfm", viper.GetString("provider"))
	}
}
