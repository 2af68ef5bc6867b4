package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configFlag  string
	envFileFlag string
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:           "instaposter",
	Short:         "Post the oldest media from a folder, one file at a time",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: instaposter.toml in the user config dir or .)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "File holding INSTA_USERNAME / INSTA_PASSWORD")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}
