package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/latency-benchmark-common/output"
	"github.com/spf13/viper"
	"github.com/tunein/go-logging/v7/pkg/logger"
	"github.com/tunein/go-logging/v7/pkg/logger/logtypes"
	"github.com/tunein/go-logging/v7/pkg/rootcollector"
	"github.com/tunein/go-logging/v7/pkg/rootlogger"

	"github.com/RyanBlaney/sonido-mosaic/configs"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/corpus"
	"github.com/RyanBlaney/sonido-mosaic/pkg/match"
	"github.com/RyanBlaney/sonido-mosaic/pkg/synth"
)

const snapshotName = "config.yaml"

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	ConfigFile    string // Application configuration file (optional)
	OverridesFile string // Partial configuration merged over the loaded one (optional)
	Source        string
	Target        string
	Output        string
	SourceDB      string
	TargetDB      string
	AnalyseOnly   bool

	// Overrides applied on top of the configuration files
	Analyse          []string
	Reanalyse        bool
	Rematch          bool
	EnforceF0        *bool
	EnforceIntensity *bool
	Sets             []string // kind.param=value
	Weights          []string // kind=weight
	Reductions       []string // kind=policy
	ReportFormat     string
	ReportFile       string
	Verbose          bool

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
	Viper  *viper.Viper
}

// MosaicApp handles the mosaicing application lifecycle
type MosaicApp struct {
	ctx    *Context
	config *configs.Config
	logger logging.Logger
}

// NewMosaicApp creates a new mosaicing application
func NewMosaicApp(ctx *Context) (*MosaicApp, error) {
	// Load configuration
	config, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config

	// Set up logging
	logger := setupLogging(ctx)
	ctx.Logger = logger

	logger.Debug("Mosaic application initialized", logging.Fields{
		"app_config_file": ctx.ConfigFile,
		"overrides_file":  ctx.OverridesFile,
		"source":          ctx.Source,
		"target":          ctx.Target,
		"output":          ctx.Output,
		"report_format":   config.Output.ReportFormat,
	})

	return &MosaicApp{
		ctx:    ctx,
		config: config,
		logger: logger,
	}, nil
}

// Config returns the effective configuration
func (app *MosaicApp) Config() *configs.Config {
	return app.config
}

// Run executes the pipeline and writes the run report
func (app *MosaicApp) Run(ctx context.Context) (*Report, error) {
	var (
		report *Report
		err    error
	)
	if app.ctx.AnalyseOnly {
		report, err = app.Analyse(ctx)
	} else {
		report, err = app.Mosaic(ctx)
	}
	if err != nil {
		return nil, err
	}

	if err := app.outputResults(report); err != nil {
		return nil, fmt.Errorf("failed to output results: %w", err)
	}
	return report, nil
}

// Mosaic analyses both corpora, matches target grains against the source and
// writes one synthesized file per target item to the output directory
func (app *MosaicApp) Mosaic(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(app.config)

	source, target, err := app.openCorpora(ctx)
	if err != nil {
		return nil, err
	}
	defer source.Close()
	if target == nil {
		return nil, common.ConfigError("target", "corpus path is required")
	}
	defer target.Close()

	out, err := corpus.NewOutput(app.ctx.Output, app.config.Analysis.Persist, app.logger)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	stage := time.Now()
	if err := app.analyse(ctx, source, target); err != nil {
		return nil, err
	}
	report.Durations["analysis"] = time.Since(stage).Seconds()
	report.Source = corpusReport(source)
	report.Target = corpusReport(target)

	stage = time.Now()
	mopts, err := app.config.MatchOptions()
	if err != nil {
		return nil, err
	}
	matcher, err := match.NewMatcher(mopts, out.Store(), app.logger)
	if err != nil {
		return nil, err
	}
	result, err := matcher.Match(ctx, source, target)
	if err != nil {
		return nil, fmt.Errorf("matching failed: %w", err)
	}
	report.Durations["matching"] = time.Since(stage).Seconds()
	report.MatchKey = result.Key
	report.MatchedGrains = len(result.Targets)

	stage = time.Now()
	synthesizer, err := synth.NewSynthesizer(app.config.SynthOptions(), app.logger)
	if err != nil {
		return nil, err
	}
	outputs, err := synthesizer.Synthesize(ctx, result, source, target)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	for _, o := range outputs {
		item, err := out.WriteItem(o.Name, o.Samples, o.SampleRate, app.config.Output.BitDepth, app.config.Output.Channels)
		if err != nil {
			return nil, err
		}
		if err := o.Save(out.Store()); err != nil {
			return nil, err
		}
		report.Outputs = append(report.Outputs, OutputReport{
			Name:             item.Name,
			Path:             item.Path,
			Seconds:          item.Seconds(),
			Grains:           len(o.Plan),
			Peak:             o.Peak,
			MissingPitch:     o.MissingPitch,
			MissingAmplitude: o.MissingAmplitude,
		})
	}
	report.Durations["synthesis"] = time.Since(stage).Seconds()

	snapshot := filepath.Join(app.ctx.Output, "data", snapshotName)
	if err := app.config.WriteSnapshot(snapshot); err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageWrite, snapshot, "failed to write configuration snapshot", err)
	}
	report.Durations["total"] = time.Since(start).Seconds()

	app.logger.Info("Mosaic complete", logging.Fields{
		"outputs":     len(report.Outputs),
		"grains":      report.MatchedGrains,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	app.collectRunMetrics(report)
	return report, nil
}

// Analyse populates the analysis stores of the source corpus and, when given,
// the target corpus without matching or synthesizing
func (app *MosaicApp) Analyse(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(app.config)

	source, target, err := app.openCorpora(ctx)
	if err != nil {
		return nil, err
	}
	defer source.Close()
	if target != nil {
		defer target.Close()
	}

	if err := app.analyse(ctx, source, target); err != nil {
		return nil, err
	}
	report.Source = corpusReport(source)
	if target != nil {
		report.Target = corpusReport(target)
	}
	report.Durations["analysis"] = time.Since(start).Seconds()
	report.Durations["total"] = report.Durations["analysis"]

	app.collectRunMetrics(report)
	return report, nil
}

// openCorpora loads the source and, when a path is set, the target corpus
func (app *MosaicApp) openCorpora(ctx context.Context) (*corpus.Corpus, *corpus.Corpus, error) {
	open := func(role common.Role, root, db string) (*corpus.Corpus, error) {
		return corpus.Open(ctx, corpus.Options{
			Role:           role,
			Root:           root,
			DatabaseDir:    db,
			Persist:        app.config.Analysis.Persist,
			MaxConcurrency: app.config.Analysis.MaxConcurrency,
			StoreTimeout:   app.config.Analysis.StoreTimeout,
			Logger:         app.logger,
		})
	}

	source, err := open(common.RoleSource, app.ctx.Source, app.ctx.SourceDB)
	if err != nil {
		return nil, nil, err
	}
	if app.ctx.Target == "" {
		return source, nil, nil
	}
	target, err := open(common.RoleTarget, app.ctx.Target, app.ctx.TargetDB)
	if err != nil {
		source.Close()
		return nil, nil, err
	}
	return source, target, nil
}

func (app *MosaicApp) analyse(ctx context.Context, corpora ...*corpus.Corpus) error {
	kinds, err := app.config.Kinds()
	if err != nil {
		return err
	}
	settings, err := app.config.Settings()
	if err != nil {
		return err
	}
	for _, c := range corpora {
		if c == nil {
			continue
		}
		if err := c.Analyse(ctx, kinds, settings, app.config.Analysis.Reanalyse); err != nil {
			return fmt.Errorf("%s analysis failed: %w", c.Role(), err)
		}
	}
	return nil
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	if ctx.Verbose || ctx.Config.Verbose || strings.EqualFold(ctx.Config.LogLevel, "debug") {
		logging.SetLevel(logging.DebugLevel)
	}
	return logging.NewDefaultLogger()
}

// outputResults formats the run report and writes it to the report file or stdout
func (app *MosaicApp) outputResults(report *Report) error {
	outputData := report.data(app.config.Verbose || app.ctx.Verbose)

	// Create formatter
	var formatter output.Formatter
	switch app.config.Output.ReportFormat {
	case "json":
		formatter = &output.JSONFormatter{}
	case "yaml":
		formatter = &output.YAMLFormatter{}
	case "csv":
		formatter = &output.CSVFormatter{}
	case "table":
		formatter = &output.TableFormatter{}
	default:
		formatter = &output.JSONFormatter{}
	}

	// Format data
	formattedData, err := formatter.Format(outputData, true)
	if err != nil {
		// Undefined peaks and empty corpora produce NaN, which JSON cannot carry
		if strings.Contains(err.Error(), "unsupported value") {
			sanitizedData := sanitizeForJSON(outputData)
			formattedData, err = formatter.Format(sanitizedData, true)
		}
		if err != nil {
			return fmt.Errorf("failed to format output data: %w", err)
		}
	}

	// Write to file or stdout
	if app.config.Output.ReportFile != "" {
		return app.writeToFile(app.config.Output.ReportFile, formattedData)
	}

	_, err = os.Stdout.Write(formattedData)
	return err
}

// collectRunMetrics sends per-stage counters to rootcollector
func (app *MosaicApp) collectRunMetrics(report *Report) {
	if !app.config.Metrics.Enabled || report == nil {
		return
	}

	path := app.config.Metrics.LogPath
	if path == "" {
		base := app.ctx.Output
		if base == "" {
			base = filepath.Dir(app.ctx.Source)
		}
		path = filepath.Join(base, "data", "metrics.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logging.Error(err, "Failed creating metrics directory")
		return
	}

	err := rootlogger.Configure(logger.LogOptions{
		Out:          path,
		ReopenSignal: syscall.SIGHUP,
		Level:        logtypes.InfoLevel,
	})
	if err != nil {
		logging.Error(err, "Failed configuring log writer")
	}

	baseTags := []string{"mode:mosaic"}
	if app.ctx.AnalyseOnly {
		baseTags = []string{"mode:analyse"}
	}

	for role, c := range map[string]*CorpusReport{"source": report.Source, "target": report.Target} {
		if c == nil {
			continue
		}
		tags := append(append([]string{}, baseTags...), "corpus:"+role)
		rootcollector.Metric("mosaic.analysis.items", int64(c.Items), tags)
		rootcollector.Metric("mosaic.analysis.cache_hits", c.Cache.Hits, tags)
		rootcollector.Metric("mosaic.analysis.computed", c.Cache.Computed, tags)
	}

	if !app.ctx.AnalyseOnly {
		rootcollector.Metric("mosaic.match.grains", int64(report.MatchedGrains), baseTags)
		for _, o := range report.Outputs {
			tags := append(append([]string{}, baseTags...), "item:"+o.Name)
			rootcollector.Metric("mosaic.synthesis.grains", int64(o.Grains), tags)
			rootcollector.Metric("mosaic.synthesis.missing_pitch", int64(o.MissingPitch), tags)
			rootcollector.Metric("mosaic.synthesis.missing_amplitude", int64(o.MissingAmplitude), tags)
		}
	}

	for stage, seconds := range report.Durations {
		tags := append(append([]string{}, baseTags...), "stage:"+stage)
		rootcollector.Metric("mosaic.stage.duration.milliseconds", int64(seconds*1000), tags)
	}
}

// writeToFile writes data to the specified output file
func (app *MosaicApp) writeToFile(path string, data []byte) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": path,
		"size_bytes":  len(data),
	})

	return nil
}

// sanitizeForJSON recursively cleans infinite and NaN values from any data structure
func sanitizeForJSON(data any) any {
	switch v := data.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0.0
		}
		return v
	case map[string]any:
		result := make(map[string]any)
		for k, val := range v {
			result[k] = sanitizeForJSON(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = sanitizeForJSON(val)
		}
		return result
	default:
		// Use reflection to handle structs and other complex types
		return sanitizeWithReflection(data)
	}
}

// sanitizeWithReflection uses reflection to sanitize struct fields
func sanitizeWithReflection(data any) any {
	if data == nil {
		return nil
	}

	val := reflect.ValueOf(data)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Struct:
		if t, ok := val.Interface().(time.Time); ok {
			return t
		}
		result := make(map[string]any)
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			fieldType := typ.Field(i)

			// Skip unexported fields
			if !field.CanInterface() {
				continue
			}

			// Get JSON tag name or use field name
			fieldName := fieldType.Name
			if jsonTag := fieldType.Tag.Get("json"); jsonTag != "" && jsonTag != "-" {
				if name, _, _ := strings.Cut(jsonTag, ","); name != "" {
					fieldName = name
				}
			}

			result[fieldName] = sanitizeForJSON(field.Interface())
		}
		return result
	case reflect.Slice:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			result[i] = sanitizeForJSON(val.Index(i).Interface())
		}
		return result
	case reflect.Map:
		result := make(map[string]any)
		for _, key := range val.MapKeys() {
			keyStr := fmt.Sprintf("%v", key.Interface())
			result[keyStr] = sanitizeForJSON(val.MapIndex(key).Interface())
		}
		return result
	case reflect.Float64, reflect.Float32:
		f := val.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0.0
		}
		return f
	default:
		return val.Interface()
	}
}
