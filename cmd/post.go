package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"instaposter/internal"
)

var (
	countFlag     int
	dryRunFlag    bool
	delayFlag     int
	onErrorFlag   string
	useExifTool   bool
	noManifestFlg bool
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post the oldest media files and move them to the archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := internal.LoadConfig(internal.LoadOptions{ConfigFile: configFlag, EnvFile: envFileFlag})
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("on-error") {
			conf.OnError = onErrorFlag
		}
		if cmd.Flags().Changed("exiftool") {
			conf.UseExifTool = useExifTool
		}
		if noManifestFlg {
			conf.Manifest = false
		}
		if err := conf.Validate(dryRunFlag); err != nil {
			return err
		}

		policy, err := internal.ParseErrorPolicy(conf.OnError)
		if err != nil {
			return err
		}
		runCfg := internal.RunConfig{
			Count:                  countFlag,
			DryRun:                 dryRunFlag,
			Delay:                  time.Duration(delayFlag) * time.Second,
			OnError:                policy,
			MaxConsecutiveFailures: conf.MaxConsecutiveFailures,
		}
		if err := runCfg.Validate(); err != nil {
			return err
		}

		logger, err := internal.NewLogger(conf.LogFile, os.Stderr, debugFlag)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logger.Close()

		ctx, cancel := handleSignals(cmd.Context())
		defer cancel()

		res, err := runPost(ctx, conf, runCfg, logger)
		if err != nil {
			logger.Error("poster run failed", "error", err)
			return err
		}
		if res.Failed > 0 {
			logger.Warn("some files failed and were moved aside", "failed", res.Failed, "dir", conf.FailedDir, "errors", res.Err())
		}
		return nil
	},
}

// runPost wires the collaborators from conf and runs one posting loop.
func runPost(ctx context.Context, conf *internal.Config, runCfg internal.RunConfig, logger *internal.Logger) (res internal.RunResult, err error) {
	loc := conf.Location()

	meta := internal.NewMetadataReader(loc, conf.UseExifTool)
	defer func() {
		if cerr := meta.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("close exiftool: %w", cerr)).ErrorOrNil()
		}
	}()

	resolver := internal.NewResolver(loc, logger.Logger, internal.DefaultStrategies(meta)...)
	deps := internal.PosterDeps{
		Selector:   internal.NewSelector(conf.SourceDir, conf.ScanExt, resolver, logger.Logger),
		Archiver:   internal.NewArchiver(conf.SourceDir, conf.ArchiveDir, loc, logger.Logger),
		Quarantine: internal.NewArchiver(conf.SourceDir, conf.FailedDir, loc, logger.Logger),
		Logger:     logger.Logger,
	}

	if !runCfg.DryRun {
		deps.Platform = internal.NewGatewayClient(conf.GatewayURL, conf.Username, conf.Password, logger.Logger)
		deps.Publisher = internal.NewPublisher(
			internal.ImagingOrienter{Quality: 95},
			internal.NewFFmpegTranscoder(conf.TranscodeOptions(), logger.Logger),
			conf.TempDir,
			logger.Logger,
		)
		if conf.Manifest {
			session, err := internal.NewRunSession(conf.ArchiveDir)
			if err != nil {
				return internal.RunResult{}, err
			}
			defer session.Close()
			deps.Session = session
		}
	}

	return internal.NewPoster(runCfg, deps).Run(ctx)
}

func init() {
	postCmd.Flags().IntVar(&countFlag, "count", 10, "Number of media files to post")
	postCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Run without posting or moving files")
	postCmd.Flags().IntVar(&delayFlag, "delay", 0, "Delay in seconds between posts")
	postCmd.Flags().StringVar(&onErrorFlag, "on-error", "abort", "What a failed post does: abort the run, or skip the file and continue")
	postCmd.Flags().BoolVar(&useExifTool, "exiftool", false, "Fall back to the exiftool binary for capture dates")
	postCmd.Flags().BoolVar(&noManifestFlg, "no-manifest", false, "Do not append to the archive manifest")

	rootCmd.AddCommand(postCmd)
}
