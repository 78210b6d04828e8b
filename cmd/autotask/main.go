package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/autotask/internal/profile"
	"github.com/hrygo/autotask/server"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "autotask",
	Short: "Turn inbox messages into workspace tasks",
	Long: `autotask signs users in with Google, reads their newest Gmail messages,
extracts a task from each one with a chat completion service and publishes it
to a ClickUp list.

All per-user state travels in a signed session cookie, backed by a bounded
in-memory cache.`,
	Version: version,
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := newProfile()
		if err := instanceProfile.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
			os.Exit(1)
		}

		logger := server.NewLogger(instanceProfile)
		slog.SetDefault(logger)

		ctx, cancel := context.WithCancel(context.Background())
		s, err := server.NewServer(ctx, instanceProfile, logger)
		if err != nil {
			cancel()
			slog.Error("failed to create server", slog.String("error", err.Error()))
			os.Exit(1)
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		if err := s.Start(ctx); err != nil {
			cancel()
			slog.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}

		<-c
		s.Shutdown(ctx)
		cancel()
	},
}

// newProfile reads the configuration from viper, which resolves flags, then
// AUTOTASK_* environment variables, then defaults.
func newProfile() *profile.Profile {
	return &profile.Profile{
		Mode:                viper.GetString("mode"),
		Addr:                viper.GetString("addr"),
		Port:                viper.GetInt("port"),
		InstanceURL:         viper.GetString("instance-url"),
		Secret:              viper.GetString("secret"),
		CookieSecure:        viper.GetBool("cookie-secure"),
		LogLevel:            viper.GetString("log-level"),
		GoogleClientID:      viper.GetString("google-client-id"),
		GoogleClientSecret:  viper.GetString("google-client-secret"),
		GoogleIssuer:        viper.GetString("google-issuer"),
		GmailBaseURL:        viper.GetString("gmail-base-url"),
		CompletionBaseURL:   viper.GetString("completion-base-url"),
		CompletionModel:     viper.GetString("completion-model"),
		ClickUpBaseURL:      viper.GetString("clickup-base-url"),
		ClickUpAuthorizeURL: viper.GetString("clickup-authorize-url"),
		CacheCapacity:       viper.GetInt("cache-capacity"),
		CacheTTL:            viper.GetDuration("cache-ttl"),
		MaxItems:            viper.GetInt("max-items"),
		RecoveryDelay:       viper.GetDuration("recovery-delay"),
		Version:             version,
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("cache-capacity", 1000)
	viper.SetDefault("cache-ttl", "24h")
	viper.SetDefault("max-items", 5)
	viper.SetDefault("recovery-delay", "2s")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8080, "port of server")
	rootCmd.PersistentFlags().String("instance-url", "", "public url of this instance, used for callback urls")
	rootCmd.PersistentFlags().String("secret", "", "session token signing secret")
	rootCmd.PersistentFlags().Bool("cookie-secure", false, "mark the session cookie Secure")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Int("cache-capacity", 1000, "maximum number of cached sessions")
	rootCmd.PersistentFlags().Duration("cache-ttl", 24*time.Hour, "lifetime of a cached session")
	rootCmd.PersistentFlags().Int("max-items", 5, "messages fetched per request")
	rootCmd.PersistentFlags().Duration("recovery-delay", 2*time.Second, "pause before the follow-up completion")

	for _, name := range []string{
		"mode", "addr", "port", "instance-url", "secret", "cookie-secure", "log-level",
		"cache-capacity", "cache-ttl", "max-items", "recovery-delay",
	} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("autotask")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
