package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"instaposter/internal"
)

var (
	formatFlag string
	limitFlag  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the files waiting to be posted, oldest first",
	Long: `Scan the source directory and print the order the next runs would post in,
with the resolved creation time and where it came from. Nothing is moved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatFlag != "table" && formatFlag != "json" {
			return fmt.Errorf("unknown format %q (want table or json)", formatFlag)
		}

		conf, err := internal.LoadConfig(internal.LoadOptions{ConfigFile: configFlag, EnvFile: envFileFlag})
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("exiftool") {
			conf.UseExifTool = useExifTool
		}

		logger, err := internal.NewLogger(conf.LogFile, os.Stderr, debugFlag)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logger.Close()

		meta := internal.NewMetadataReader(conf.Location(), conf.UseExifTool)
		defer meta.Close()

		resolver := internal.NewResolver(conf.Location(), logger.Logger, internal.DefaultStrategies(meta)...)
		selector := internal.NewSelector(conf.SourceDir, conf.ScanExt, resolver, logger.Logger)

		report, err := internal.BuildQueue(selector, limitFlag)
		if err != nil {
			return fmt.Errorf("failed to scan queue: %w", err)
		}
		return internal.DisplayQueue(cmd.OutOrStdout(), report, formatFlag)
	},
}

func init() {
	queueCmd.Flags().StringVar(&formatFlag, "format", "table", "Output format: table, json")
	queueCmd.Flags().IntVar(&limitFlag, "limit", 0, "Show at most this many files (0 = all)")
	queueCmd.Flags().BoolVar(&useExifTool, "exiftool", false, "Fall back to the exiftool binary for capture dates")

	rootCmd.AddCommand(queueCmd)
}
