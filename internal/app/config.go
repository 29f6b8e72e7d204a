package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-mosaic/configs"
	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// analysisParams are the per-kind keys accepted by --set
var analysisParams = map[string]bool{
	"window_size":     true,
	"window_ms":       true,
	"overlap":         true,
	"ratio_threshold": true,
}

// loadAndMergeConfig loads configuration from files and merges with CLI flags
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	v := ctx.Viper
	if v == nil {
		v = viper.GetViper()
	}

	if ctx.ConfigFile != "" && v.ConfigFileUsed() == "" {
		v.SetConfigFile(ctx.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	// Override file is merged over the base configuration
	if ctx.OverridesFile != "" {
		overrides, err := loadOverridesFromFile(ctx.OverridesFile)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	// CLI flags win over both
	if err := applyCLIOverrides(v, ctx); err != nil {
		return nil, err
	}

	config, err := configs.LoadConfig(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load base configuration: %w", err)
	}

	validate := configs.ValidateConfig
	if ctx.AnalyseOnly {
		validate = configs.ValidateAnalysisConfig
	}
	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// loadOverridesFromFile loads a partial configuration from a file
func loadOverridesFromFile(filePath string) (map[string]any, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("overrides file does not exist: %s", filePath)
	}

	// Determine file format
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		return loadOverridesFromYAML(filePath)
	case ".json":
		return loadOverridesFromJSON(filePath)
	default:
		// Try YAML first, then JSON
		if cfg, err := loadOverridesFromYAML(filePath); err == nil {
			return cfg, nil
		}
		return loadOverridesFromJSON(filePath)
	}
}

// loadOverridesFromYAML loads overrides from a YAML file
func loadOverridesFromYAML(filePath string) (map[string]any, error) {
	data, err := readFile(filePath)
	if err != nil {
		return nil, err
	}

	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse YAML overrides: %w", err)
	}
	return overrides, nil
}

// loadOverridesFromJSON loads overrides from a JSON file
func loadOverridesFromJSON(filePath string) (map[string]any, error) {
	data, err := readFile(filePath)
	if err != nil {
		return nil, err
	}

	var overrides map[string]any
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse JSON overrides: %w", err)
	}
	return overrides, nil
}

func readFile(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open overrides file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}
	return data, nil
}

// applyCLIOverrides sets the values given on the command line
func applyCLIOverrides(v *viper.Viper, ctx *Context) error {
	if len(ctx.Analyse) > 0 {
		if _, err := analysis.ParseKinds(ctx.Analyse); err != nil {
			return fmt.Errorf("--analyse: %w", err)
		}
		v.Set("analysis.kinds", ctx.Analyse)
	}
	if ctx.Reanalyse {
		v.Set("analysis.reanalyse", true)
	}
	if ctx.Rematch {
		v.Set("matcher.rematch", true)
	}
	if ctx.EnforceF0 != nil {
		v.Set("synthesizer.enforce_f0", *ctx.EnforceF0)
	}
	if ctx.EnforceIntensity != nil {
		v.Set("synthesizer.enforce_intensity", *ctx.EnforceIntensity)
	}
	if ctx.ReportFormat != "" {
		v.Set("output.report_format", ctx.ReportFormat)
	}
	if ctx.ReportFile != "" {
		v.Set("output.report_file", ctx.ReportFile)
	}
	if ctx.Verbose {
		v.Set("verbose", true)
	}

	for _, set := range ctx.Sets {
		key, value, err := splitAssignment("--set", set)
		if err != nil {
			return err
		}
		kind, param, ok := strings.Cut(key, ".")
		if !ok || !analysisParams[param] {
			return common.ConfigError("--set", fmt.Sprintf("%q is not kind.param with param one of window_size, window_ms, overlap, ratio_threshold", key))
		}
		if _, err := analysis.ParseKind(kind); err != nil {
			return fmt.Errorf("--set: %w", err)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return common.ConfigError("--set "+key, fmt.Sprintf("%q is not a number", value))
		}
		if param == "window_size" {
			v.Set("analyses."+kind+"."+param, int(f))
			continue
		}
		v.Set("analyses."+kind+"."+param, f)
	}

	for _, weight := range ctx.Weights {
		kind, value, err := splitAssignment("--weight", weight)
		if err != nil {
			return err
		}
		if _, err := analysis.ParseKind(kind); err != nil {
			return fmt.Errorf("--weight: %w", err)
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return common.ConfigError("--weight "+kind, fmt.Sprintf("%q is not a number", value))
		}
		v.Set("matcher_weightings."+kind, w)
	}

	for _, reduction := range ctx.Reductions {
		kind, policy, err := splitAssignment("--reduction", reduction)
		if err != nil {
			return err
		}
		if _, err := analysis.ParseKind(kind); err != nil {
			return fmt.Errorf("--reduction: %w", err)
		}
		if _, err := analysis.ParsePolicy(policy); err != nil {
			return fmt.Errorf("--reduction %s: %w", kind, err)
		}
		v.Set("reductions."+kind, policy)
	}
	return nil
}

func splitAssignment(flag, s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return "", "", common.ConfigError(flag, fmt.Sprintf("%q is not key=value", s))
	}
	return strings.ToLower(key), value, nil
}

// GenerateExampleConfig writes the default configuration as YAML
func GenerateExampleConfig(outputFile string) error {
	if err := configs.GetDefaultConfig().WriteSnapshot(outputFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Example configuration written to: %s\n", outputFile)
	return nil
}

// ValidateConfigFile loads a configuration file over the defaults and validates it
func ValidateConfigFile(configFile string) (*configs.Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config, err := configs.LoadConfig(v)
	if err != nil {
		return nil, err
	}
	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}
