package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mosaic/internal/app"
)

var (
	// Mosaic command flags
	sourceDB         string
	targetDB         string
	analyseKinds     []string
	reanalyse        bool
	rematch          bool
	enforceF0        bool
	enforceIntensity bool
	setParams        []string
	weights          []string
	reductions       []string
	reportFormat     string
	reportFile       string
)

// mosaicCmd represents the mosaic command
var mosaicCmd = &cobra.Command{
	Use:   "mosaic [flags] <source> <target> <output>",
	Short: "Synthesize the target from grains of the source",
	Long: `Analyse the source and target corpora, match every target grain to its
nearest source grains and write one synthesized file per target item.

Source and target may each be a single audio file or a directory scanned
recursively for wav, aiff, mp3, ogg and flac files. Analyses are cached in
<corpus>/data/analysis.db unless --src-db or --tar-db point elsewhere. The output
directory receives audio/ with the synthesized files and data/ with the match
database and a snapshot of the effective configuration.

Examples:
  # Match on pitch alone (the default weighting)
  sonido-mosaic mosaic ./drums ./voice.wav ./out

  # Match on loudness and brightness, without pitch shifting
  sonido-mosaic mosaic --weight f0=0 --weight rms=1 --weight spccntr=0.5 \
    --enforce-f0=false ./strings ./speech ./out

  # Shorter rms windows and a fresh analysis
  sonido-mosaic mosaic --set rms.window_ms=35 --reanalyse ./src ./tar ./out

  # Write a JSON run report
  sonido-mosaic mosaic --report-format json --report-file run.json ./src ./tar ./out`,
	Args: cobra.ExactArgs(3),
	RunE: runMosaic,
}

func init() {
	rootCmd.AddCommand(mosaicCmd)
	addAnalysisFlags(mosaicCmd)

	mosaicCmd.Flags().StringVar(&targetDB, "tar-db", "",
		"target analysis database directory (default <target>/data)")
	mosaicCmd.Flags().BoolVar(&rematch, "rematch", false,
		"recompute matches even when stored ones exist")
	mosaicCmd.Flags().BoolVar(&enforceF0, "enforce-f0", true,
		"pitch shift source grains toward the target f0")
	mosaicCmd.Flags().BoolVar(&enforceIntensity, "enforce-intensity", true,
		"scale source grains toward the target rms")
	mosaicCmd.Flags().StringArrayVar(&weights, "weight", nil,
		"matcher weighting as kind=weight (repeatable)")
	mosaicCmd.Flags().StringArrayVar(&reductions, "reduction", nil,
		"descriptor reduction as kind=policy, policy one of mean, median, log2_mean, log2_median (repeatable)")
}

// addAnalysisFlags registers the flags shared by every command that analyses a corpus
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sourceDB, "src-db", "",
		"source analysis database directory (default <source>/data)")
	cmd.Flags().StringSliceVar(&analyseKinds, "analyse", nil,
		"analyses to compute in addition to the weighted ones (comma separated)")
	cmd.Flags().BoolVar(&reanalyse, "reanalyse", false,
		"recompute analyses even when cached ones exist")
	cmd.Flags().StringArrayVar(&setParams, "set", nil,
		"analysis parameter as kind.param=value, param one of window_size, window_ms, overlap, ratio_threshold (repeatable)")
	cmd.Flags().StringVarP(&reportFormat, "report-format", "o", "",
		"run report format (json, yaml, csv, table)")
	cmd.Flags().StringVar(&reportFile, "report-file", "",
		"write the run report to a file instead of stdout")
}

func runMosaic(cmd *cobra.Command, args []string) error {
	appCtx := newAppContext()
	appCtx.Source, appCtx.Target, appCtx.Output = args[0], args[1], args[2]
	appCtx.TargetDB = targetDB
	appCtx.Rematch = rematch
	appCtx.Weights = weights
	appCtx.Reductions = reductions
	if cmd.Flags().Changed("enforce-f0") {
		appCtx.EnforceF0 = &enforceF0
	}
	if cmd.Flags().Changed("enforce-intensity") {
		appCtx.EnforceIntensity = &enforceIntensity
	}

	return runApp(appCtx)
}

func newAppContext() *app.Context {
	return &app.Context{
		ConfigFile:    configFile,
		OverridesFile: overridesFile,
		SourceDB:      sourceDB,
		Analyse:       analyseKinds,
		Reanalyse:     reanalyse,
		Sets:          setParams,
		ReportFormat:  reportFormat,
		ReportFile:    reportFile,
		Verbose:       verbose,
		Viper:         GetConfig(),
	}
}

func runApp(appCtx *app.Context) error {
	mosaicApp, err := app.NewMosaicApp(appCtx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := mosaicApp.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", commandName(appCtx), err)
	}
	if appCtx.Config.Output.ReportFile != "" {
		PrintSummary(report)
	}
	return nil
}

func commandName(appCtx *app.Context) string {
	if appCtx.AnalyseOnly {
		return "analysis"
	}
	return "mosaic"
}
