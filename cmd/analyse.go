package cmd

import (
	"github.com/spf13/cobra"
)

var analyseTargetDB string

// analyseCmd represents the analyse command
var analyseCmd = &cobra.Command{
	Use:   "analyse [flags] <corpus> [second-corpus]",
	Short: "Analyse corpora without matching",
	Long: `Decode a corpus and populate its analysis database so later mosaic runs
start from cached descriptors.

The kinds analysed are the configured analysis.kinds plus every weighted kind
and their dependencies. A second corpus is analysed into --tar-db when given.

Examples:
  # Analyse a source directory with the configured kinds
  sonido-mosaic analyse ./drums

  # Only rms and the spectral centroid, recomputed
  sonido-mosaic analyse --analyse rms,spccntr --reanalyse ./drums`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnalyse,
}

func init() {
	rootCmd.AddCommand(analyseCmd)
	addAnalysisFlags(analyseCmd)

	analyseCmd.Flags().StringVar(&analyseTargetDB, "tar-db", "",
		"analysis database directory of the second corpus (default <second-corpus>/data)")
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	appCtx := newAppContext()
	appCtx.AnalyseOnly = true
	appCtx.Source = args[0]
	if len(args) == 2 {
		appCtx.Target = args[1]
		appCtx.TargetDB = analyseTargetDB
	}
	return runApp(appCtx)
}
