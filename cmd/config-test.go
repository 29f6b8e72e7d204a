package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mosaic/configs"
	"github.com/RyanBlaney/sonido-mosaic/internal/app"
)

var writeExample string

// configTestCmd represents the config test command
var configTestCmd = &cobra.Command{
	Use:   "config-test",
	Short: "Test and display all configuration values",
	Long: `Test configuration loading and display all values to verify proper parsing.

This command loads the configuration, validates it and displays the effective
values, so a YAML file or environment override can be checked before a run.

Examples:
  # Test with default config file
  sonido-mosaic config-test

  # Test with specific config file
  sonido-mosaic --config /path/to/config.yaml config-test

  # Write the default configuration to a file
  sonido-mosaic config-test --write-example ./sonido-mosaic.yaml`,
	RunE: runConfigTest,
}

func init() {
	rootCmd.AddCommand(configTestCmd)

	configTestCmd.Flags().StringVar(&writeExample, "write-example", "",
		"write the default configuration to this path and exit")
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	if writeExample != "" {
		return app.GenerateExampleConfig(writeExample)
	}

	fmt.Println(TitleStyle.Render("SONIDO MOSAIC CONFIGURATION TEST"))

	// Load configuration
	config, err := configs.LoadConfig(GetConfig())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)

	printSection("ANALYSIS")
	printKeyValue("Kinds", strings.Join(config.Analysis.Kinds, ", "))
	printKeyValue("Reanalyse", fmt.Sprintf("%t", config.Analysis.Reanalyse))
	printKeyValue("Persist", fmt.Sprintf("%t", config.Analysis.Persist))
	printKeyValue("Max Concurrency", fmt.Sprintf("%d", config.Analysis.MaxConcurrency))
	printKeyValue("Store Timeout", config.Analysis.StoreTimeout.String())

	printSection("ANALYSIS PARAMETERS")
	for _, name := range sortedKeys(config.Analyses) {
		p := config.Analyses[name]
		value := fmt.Sprintf("window %d samples", p.WindowSize)
		if p.WindowMS > 0 {
			value = fmt.Sprintf("window %.1f ms", p.WindowMS)
		}
		value += fmt.Sprintf(", overlap %g", p.Overlap)
		if p.RatioThreshold > 0 {
			value += fmt.Sprintf(", ratio threshold %g", p.RatioThreshold)
		}
		printKeyValue("  "+name, value)
	}

	printSection("MATCHER WEIGHTINGS")
	for _, name := range sortedKeys(config.MatcherWeightings) {
		if w := config.MatcherWeightings[name]; w != 0 {
			printKeyValue("  "+name, fmt.Sprintf("%g (%s)", w, config.Reductions[name]))
		}
	}

	printSection("MATCHER")
	printKeyValue("Grain Size", fmt.Sprintf("%.1f ms", config.Matcher.GrainSize))
	printKeyValue("Overlap", fmt.Sprintf("%g", config.Matcher.Overlap))
	printKeyValue("Match Quantity", fmt.Sprintf("%d", config.Matcher.MatchQuantity))
	printKeyValue("Method", config.Matcher.Method)
	printKeyValue("Rematch", fmt.Sprintf("%t", config.Matcher.Rematch))

	printSection("SYNTHESIZER")
	s := config.Synthesizer
	printKeyValue("Grain Size", fmt.Sprintf("%.1f ms", s.GrainSize))
	printKeyValue("Overlap", fmt.Sprintf("%g", s.Overlap))
	printKeyValue("Enforce Intensity", fmt.Sprintf("%t (limit %g)", s.EnforceIntensity, s.EnfIntensityRatioLimit))
	printKeyValue("Enforce F0", fmt.Sprintf("%t (limit %g)", s.EnforceF0, s.EnfF0RatioLimit))
	printKeyValue("Normalize", fmt.Sprintf("%t (ceiling %g)", s.Normalize, s.NormalizeCeiling))
	printKeyValue("Match Quantity", fmt.Sprintf("%d", s.MatchQuantity))
	printKeyValue("Selection", fmt.Sprintf("%s (seed %d)", s.Selection, s.Seed))
	printKeyValue("Resample Quality", fmt.Sprintf("%d", s.Quality))

	printSection("OUTPUT")
	printKeyValue("Sample Rate", fmt.Sprintf("%d Hz", config.Output.SampleRate))
	printKeyValue("Bit Depth", fmt.Sprintf("%d", config.Output.BitDepth))
	printKeyValue("Channels", fmt.Sprintf("%d", config.Output.Channels))
	printKeyValue("Report Format", config.Output.ReportFormat)

	printSection("METRICS")
	printKeyValue("Enabled", fmt.Sprintf("%t", config.Metrics.Enabled))
	printKeyValue("Log Path", config.Metrics.LogPath)

	if err := configs.ValidateConfig(config); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Println()
	fmt.Println(SuccessStyle.Render("CONFIGURATION TEST COMPLETED SUCCESSFULLY"))
	if used := GetConfig().ConfigFileUsed(); used != "" {
		fmt.Printf("Config file: %s\n", used)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
