// Package cli provides the command-line interface and HTTP server for the
// monodash aggregation service. It orchestrates the application lifecycle:
// configuration loading, database and work store initialization, source
// registration, HTTP server setup, and graceful shutdown.
//
// Configuration is layered the 12-factor way: defaults, then an optional
// YAML config file, then MONODASH_-prefixed environment variables, then
// command-line flags.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notaproblemdotdev/monodash/api"
	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/config"
	"github.com/notaproblemdotdev/monodash/sources"
	"github.com/notaproblemdotdev/monodash/sources/azuredevops"
	"github.com/notaproblemdotdev/monodash/sources/gitea"
	"github.com/notaproblemdotdev/monodash/sources/github"
	"github.com/notaproblemdotdev/monodash/sources/gitlab"
	"github.com/notaproblemdotdev/monodash/sources/jira"
	"github.com/notaproblemdotdev/monodash/sources/todoist"
	"github.com/notaproblemdotdev/monodash/store"
	"github.com/notaproblemdotdev/monodash/version"
)

// cfgFile holds the path to the configuration file specified via
// command-line flag. When empty, the default search order is
// $HOME/.monodash.yaml then ./.monodash.yaml, then environment variables
// with the MONODASH_ prefix.
var cfgFile string

// RootCmd defines the main CLI command for the monodash aggregation
// service. Running it starts the HTTP API over the work store.
var RootCmd = &cobra.Command{
	Use:     "monodash",
	Short:   "Unified work-item aggregation service",
	Long:    "monodash fuses code reviews and work items from GitLab, GitHub, Gitea, Jira, Todoist, and Azure DevOps into a single cached view, served over a small REST API.",
	Version: version.Short(),
	Run:     runServer,
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		common.Logger.WithField("error", err.Error()).Error("Command failed")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.monodash.yaml)")
	RootCmd.PersistentFlags().String("port", "8080", "HTTP server port")
	RootCmd.PersistentFlags().String("api-key", "", "optional API key protecting the HTTP surface")
	RootCmd.PersistentFlags().String("db-path", "", "SQLite database path (default is ~/.config/monodash/monodash.db)")
	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("port", RootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("api_key", RootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("db_path", RootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig handles configuration file discovery and environment variable
// binding. Called automatically by cobra before command execution.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".monodash")
	}

	viper.SetEnvPrefix("MONODASH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// buildRegistry registers every provider the configuration enables. A
// provider with no settings is simply absent; availability and auth are
// re-checked on every fetch, so a misconfigured provider degrades to a
// skipped source rather than a startup failure.
func buildRegistry() *sources.Registry {
	registry := sources.NewRegistry()

	if baseURL := viper.GetString("gitlab.url"); baseURL != "" {
		source, err := gitlab.New(gitlab.Config{
			BaseURL: baseURL,
			Token:   viper.GetString("gitlab.token"),
			Group:   viper.GetString("gitlab.group"),
		})
		if err != nil {
			common.Logger.WithField("error", err.Error()).Warn("Failed to configure GitLab source")
		} else {
			registry.RegisterCodeReviewSource(source)
		}
	}

	if baseURL := viper.GetString("gitea.url"); baseURL != "" {
		source, err := gitea.New(gitea.Config{
			BaseURL: baseURL,
			Token:   viper.GetString("gitea.token"),
			Repos:   viper.GetStringSlice("gitea.repos"),
		})
		if err != nil {
			common.Logger.WithField("error", err.Error()).Warn("Failed to configure Gitea source")
		} else {
			registry.RegisterCodeReviewSource(source)
		}
	}

	if viper.GetBool("github.enabled") {
		source := github.New()
		registry.RegisterCodeReviewSource(source)
		registry.RegisterWorkItemSource(source)
	}

	if viper.GetBool("jira.enabled") {
		registry.RegisterWorkItemSource(jira.New(jira.Config{
			BaseURL: viper.GetString("jira.url"),
		}))
	}

	if token := viper.GetString("todoist.token"); token != "" {
		registry.RegisterWorkItemSource(todoist.New(todoist.Config{
			Token:    token,
			Projects: viper.GetStringSlice("todoist.projects"),
		}))
	}

	if org := viper.GetString("azuredevops.organization"); org != "" {
		registry.RegisterWorkItemSource(azuredevops.New(azuredevops.Config{
			Organization: org,
			Project:      viper.GetString("azuredevops.project"),
			Token:        viper.GetString("azuredevops.token"),
		}))
	}

	return registry
}

// runServer orchestrates startup: logging, database, work store, source
// registry, HTTP server — then blocks until SIGINT/SIGTERM and shuts the
// pieces down in reverse order.
func runServer(cmd *cobra.Command, args []string) {
	common.Configure(viper.GetString("log_level"), viper.GetString("log_format"))

	coreConfig := config.LoadCoreConfig()
	if dbPath := viper.GetString("db_path"); dbPath != "" {
		coreConfig.DBPath = dbPath
	}

	manager, err := store.Open(coreConfig.DBPath)
	if err != nil {
		common.Logger.WithField("error", err.Error()).Fatal("Failed to open work store database")
	}
	defer manager.Close()

	registry := buildRegistry()
	cache := store.NewCacheBackend(manager, coreConfig.CleanupDays)
	health := store.NewSourceHealth(coreConfig.BaseRetryDelay, coreConfig.MaxRetryDelay)
	workStore := store.NewWorkStore(registry, cache, health, store.Options{
		CodeReviewTTL:     coreConfig.CacheTTL,
		WorkItemTTL:       coreConfig.WorkItemTTL(),
		BackgroundTimeout: coreConfig.BackgroundTimeout,
	})
	defer workStore.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(api.RequestLogger())
	if apiKey := viper.GetString("api_key"); apiKey != "" {
		e.Use(api.APIKeyAuth(apiKey))
	}
	api.NewServer(workStore).Register(e)

	// Start HTTP server in background goroutine
	port := viper.GetString("port")
	go func() {
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.Logger.WithField("error", err.Error()).Fatal("HTTP server failed")
		}
	}()
	common.Logger.WithField("port", port).Info("monodash listening")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	common.Logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		common.Logger.WithField("error", err.Error()).Error("Failed to shut down HTTP server")
	}
}
