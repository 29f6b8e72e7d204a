package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/RyanBlaney/sonido-mosaic/internal/app"
)

var titleCaser = cases.Title(language.English)

// Color palette
var (
	primaryColor = lipgloss.Color("#D97706") // Amber
	successColor = lipgloss.Color("#16A34A") // Green
	errorColor   = lipgloss.Color("#DC2626") // Red
	mutedColor   = lipgloss.Color("#888888") // Gray
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginTop(1)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(28)

	ValueStyle = lipgloss.NewStyle().
			Bold(true)
)

// label turns a config or report key into a display label
func label(key string) string {
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}

func printSection(title string) {
	fmt.Printf("\n%s\n", SectionStyle.Render(title))
}

func printKeyValue(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintSummary renders the run report for humans
func PrintSummary(report *app.Report) {
	if report == nil {
		return
	}
	fmt.Println(TitleStyle.Render("Sonido Mosaic"))

	for _, c := range []struct {
		role string
		rep  *app.CorpusReport
	}{{"source", report.Source}, {"target", report.Target}} {
		if c.rep == nil {
			continue
		}
		printSection(label(c.role + " corpus"))
		printKeyValue("Path", c.rep.Path)
		printKeyValue("Items", fmt.Sprintf("%d (%.1fs)", c.rep.Items, c.rep.Seconds))
		printKeyValue("Cache", fmt.Sprintf("%d hits, %d computed, %d drifted",
			c.rep.Cache.Hits, c.rep.Cache.Computed, c.rep.Cache.Drifted))
	}

	printSection("Analyses")
	printKeyValue("Kinds", strings.Join(report.Kinds, ", "))

	if report.MatchKey != "" {
		printSection("Matching")
		printKeyValue("Match Key", report.MatchKey[:min(12, len(report.MatchKey))])
		printKeyValue("Target Grains", fmt.Sprintf("%d", report.MatchedGrains))
	}

	if len(report.Outputs) > 0 {
		printSection("Outputs")
		for _, o := range report.Outputs {
			value := fmt.Sprintf("%.2fs, %d grains, peak %.3f", o.Seconds, o.Grains, o.Peak)
			if o.MissingPitch > 0 || o.MissingAmplitude > 0 {
				value += fmt.Sprintf(" (%d without f0, %d silent)", o.MissingPitch, o.MissingAmplitude)
			}
			printKeyValue(o.Name, value)
		}
	}

	stages := make([]string, 0, len(report.Durations))
	for stage := range report.Durations {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	printSection("Durations")
	for _, stage := range stages {
		printKeyValue(label(stage), fmt.Sprintf("%.2fs", report.Durations[stage]))
	}

	fmt.Println()
	fmt.Println(SuccessStyle.Render("Done"))
}
