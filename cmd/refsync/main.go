package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/refsync/pkg/gitrepo"
	"github.com/jingkaihe/refsync/pkg/logger"
	"github.com/jingkaihe/refsync/pkg/presenter"
	"github.com/jingkaihe/refsync/pkg/reconciler"
	"github.com/jingkaihe/refsync/pkg/registry"
	"github.com/jingkaihe/refsync/pkg/restore"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("REFSYNC")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.refsync")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "refsync",
	Short: "Reconcile skill reference repositories against their declarations",
	Long: `refsync keeps the sparse-checkout submodules that back skill reference
material in agreement with their declared desired path sets. It computes the
minimal git operation sequence per reference, applies it, and reports drift
and disk usage before and after.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if viper.GetBool("quiet") {
			presenter.SetQuiet(true)
		}
		logger.SetLogFormat(viper.GetString("log_format"))
		return logger.SetLogLevel(viper.GetString("log_level"))
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
		os.Exit(1)
	},
}

// engine bundles the pieces every command works through.
type engine struct {
	registry   *registry.Registry
	gateway    *gitrepo.Gateway
	reconciler *reconciler.Reconciler
	restore    *restore.Manager
}

func buildEngine() (*engine, error) {
	reg, err := registry.Load(viper.GetString("registry"))
	if err != nil {
		return nil, err
	}

	gw, err := gitrepo.New(viper.GetString("repo_root"),
		gitrepo.WithTimeout(viper.GetDuration("git_timeout")))
	if err != nil {
		return nil, err
	}

	rec := reconciler.New(gw)
	return &engine{
		registry:   reg,
		gateway:    gw,
		reconciler: rec,
		restore:    restore.NewManager(gw, rec),
	}, nil
}

func main() {
	// Add global flags
	rootCmd.PersistentFlags().String("registry", registry.DefaultFileName, "Path to the reference declaration file")
	rootCmd.PersistentFlags().String("repo-root", ".", "Superproject root that owns the declared submodule paths")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt, json)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().Duration("git-timeout", gitrepo.DefaultOperationTimeout, "Timeout for each git operation")

	// Bind flags to viper
	viper.BindPFlag("registry", rootCmd.PersistentFlags().Lookup("registry"))
	viper.BindPFlag("repo_root", rootCmd.PersistentFlags().Lookup("repo-root"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("git_timeout", rootCmd.PersistentFlags().Lookup("git-timeout"))

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
