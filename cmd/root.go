// Package cmd provides the command-line interface for postcard.
//
// Configuration System:
//
//	Settings are read from several sources, highest priority first:
//	1. Command-line flags (--config, --port, etc.)
//	2. Environment variables following POSTCARD_<SECTION>_<OPTION>
//	3. A .env file in the working directory
//	4. The configuration file (.postcard.yml, or POSTCARD_CONFIG_FILE)
//
// Environment Variables:
//
//	POSTCARD_CONFIG_FILE: Path to a custom configuration file
//	POSTCARD_SERVER_PORT: Override the preview server port
//	POSTCARD_EMAILS_DIR: Override the emails directory
//	POSTHOG_API_KEY: Enables usage analytics
//	POSTMARK_SERVER_TOKEN: Enables test sends
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/postcard/internal/config"
)

var cfgFile string

// rootCmd represents the base command. Without a subcommand it runs init.
var rootCmd = &cobra.Command{
	Use:   "postcard",
	Short: "Live preview for MJML and HTML email templates",
	Long: `Postcard renders your email templates with sample data and keeps the
browser preview in sync while you edit.

Quick Start:
  postcard                         Find or generate an emails directory
  postcard preview                 Start the live preview server
  postcard list                    List preview files and functions
  postcard render Welcome Default  Print one rendered preview
  postcard export                  Write every preview to static HTML

Command Aliases:
  init (i), preview (serve, p), list (ls), render (r)`,
	SilenceUsage: true,
	RunE:         runInit,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .postcard.yml, can also use POSTCARD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("emails", "e", "", "emails directory (default: src/emails or emails)")

	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("emails.dir", rootCmd.PersistentFlags().Lookup("emails"))

	AddFlagValidation(rootCmd.PersistentFlags(), "log-level", ValidateLogLevel)
}

// initConfig wires the configuration sources. The --config flag beats
// POSTCARD_CONFIG_FILE, which beats .postcard.yml in the working directory.
func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("POSTCARD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".postcard")
	}

	config.ConfigureEnv()

	// A missing file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
