package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "<missing>"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case string:
		v = fmt.Sprintf("%q", val)
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	quiet   bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithQuiet prints only failures and the summary.
func WithQuiet(q bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.quiet = q
	}
}

func (f *ConsoleFormatter) FormatDocument(path string) {
	if f.quiet {
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+path))
}

// FormatOutcome prints one finished request.
func (f *ConsoleFormatter) FormatOutcome(o *runner.Outcome) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if f.quiet && !o.Failed() {
		return
	}

	name := o.Name
	if o.Collection != "" {
		name = o.Collection + " › " + o.Name
	}

	switch o.Status {
	case runner.StatusSkipped:
		fmt.Fprintf(f.writer, "  %s %s", yellow("-"), name)
		if o.Reason != "" && o.Reason != "filtered out" {
			fmt.Fprintf(f.writer, " (%s)", o.Reason)
		}
		fmt.Fprintf(f.writer, "\n")
		return

	case runner.StatusError:
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), name, red(fmt.Sprintf("[%s] %s", o.Kind, o.Reason)))
		f.formatWarnings(o)
		return
	}

	symbol := green("✓")
	if o.Status == runner.StatusFailed {
		symbol = red("✗")
	}
	timing := fmt.Sprintf("(%dms)", o.Elapsed.Milliseconds())
	if o.Attempts > 1 {
		timing = fmt.Sprintf("(%dms, %d attempts)", o.Elapsed.Milliseconds(), o.Attempts)
	}
	fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, name, cyan(timing))

	if f.verbose && o.Request != nil {
		fmt.Fprintf(f.writer, "    %s %s\n", o.Request.Method, o.Request.BuildURL())
	}
	if f.verbose && o.Response != nil {
		fmt.Fprintf(f.writer, "    Status: %d\n", o.Response.StatusCode)
	}

	if o.Status == runner.StatusFailed && len(o.Mismatches) == 0 && o.Reason != "" {
		fmt.Fprintf(f.writer, "    %s %s\n", red("→"), o.Reason)
	}

	for _, m := range o.Mismatches {
		label := string(m.Source)
		if m.Path != "" {
			label += " " + m.Path
		}
		fmt.Fprintf(f.writer, "    %s %s\n", red("→"), label)
		if m.Expected != nil || m.Actual != nil {
			fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(m.Expected, 100))
			fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(m.Actual, 100))
		}
		if m.Message != "" {
			fmt.Fprintf(f.writer, "      %s\n", m.Message)
		}
	}

	if f.verbose && len(o.Extracted) > 0 {
		fmt.Fprintf(f.writer, "    Extracted:\n")
		names := make([]string, 0, len(o.Extracted))
		for name := range o.Extracted {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(f.writer, "      %s = %s\n", name, formatValue(o.Extracted[name], 80))
		}
	}

	f.formatWarnings(o)
}

func (f *ConsoleFormatter) formatWarnings(o *runner.Outcome) {
	if !f.verbose {
		return
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, w := range o.Warnings {
		fmt.Fprintf(f.writer, "    %s %s\n", yellow("!"), w)
	}
}

// FormatResult prints the summary of one document.
func (f *ConsoleFormatter) FormatResult(path string, result *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	s := result.Summary
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Requests: ")
	if s.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", s.Passed)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Errors > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d errors", s.Errors)))
	}
	if s.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", s.Total)
	fmt.Fprintf(f.writer, "Time:     %dms\n", s.Elapsed.Milliseconds())

	if s.Latency.Count > 0 {
		l := s.Latency
		fmt.Fprintf(f.writer, "Latency:  p50=%s p95=%s p99=%s max=%s (%d attempts)\n",
			ms(l.P50), ms(l.P95), ms(l.P99), ms(l.Max), l.Count)
	}

	if f.verbose && len(result.Breakdown) > 0 {
		fmt.Fprintf(f.writer, "\n")
		for _, b := range result.Breakdown {
			fmt.Fprintf(f.writer, "  %-30s attempts=%d errors=%d p50=%s p95=%s max=%s\n",
				b.Name, b.Attempts, b.Errors, ms(b.P50), ms(b.P95), ms(b.Max))
		}
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	if f.quiet {
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitchain"), version)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}
