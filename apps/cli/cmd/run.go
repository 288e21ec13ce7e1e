package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/core/config"
	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/abdul-hamid-achik/hitchain/packages/core/env"
	"github.com/abdul-hamid-achik/hitchain/packages/core/runner"
	"github.com/abdul-hamid-achik/hitchain/packages/core/template"
	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/abdul-hamid-achik/hitchain/packages/output"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run the requests of hitchain documents",
	Long: `Run the requests declared in .yaml, .yml or .json documents.

Examples:
  hitchain run api.yaml
  hitchain run api.yaml --env-file .env.staging
  hitchain run ./chains/ --name "users-*"
  hitchain run api.yaml --var BASE_URL=http://localhost:8080 --var TOKEN=abc
  hitchain run api.yaml --output json --output-file report.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

var (
	envFileFlag    string
	envPrefixFlag  string
	varFlags       []string
	configFlag     string
	timeoutFlag    string
	maxPassesFlag  int
	strictFlag     bool
	nameFlag       string
	outputFlag     string
	outputFileFlag string
	noColorFlag    bool
	verboseFlag    int // 0=off, 1=-v, 2=-vv
	quietFlag      bool
	proxyFlag      string
	insecureFlag   bool
)

func init() {
	// Variable flags
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("HITCHAIN_ENV_FILE", ""), "Path to .env file loaded into global variables (env: HITCHAIN_ENV_FILE)")
	runCmd.Flags().StringVar(&envPrefixFlag, "env-prefix", getEnvString("HITCHAIN_ENV_PREFIX", ""), "Load environment variables with this prefix (stripped) into global variables (env: HITCHAIN_ENV_PREFIX)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a global variable, KEY=VALUE (repeatable, applied after document variables)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("HITCHAIN_CONFIG", ""), "Path to config file (env: HITCHAIN_CONFIG)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only requests matching name pattern (* at either end)")

	// Template flags
	runCmd.Flags().IntVar(&maxPassesFlag, "max-passes", getEnvInt("HITCHAIN_MAX_PASSES", 0), "Maximum expansion passes for nested variables (env: HITCHAIN_MAX_PASSES)")
	runCmd.Flags().BoolVar(&strictFlag, "strict", getEnvBool("HITCHAIN_STRICT", false), "Treat every unresolved variable as an error (env: HITCHAIN_STRICT)")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v, -vv for more detail)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("HITCHAIN_QUIET", false), "Print only failures and the summary (env: HITCHAIN_QUIET)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("HITCHAIN_NO_COLOR", false), "Disable colored output (env: HITCHAIN_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("HITCHAIN_OUTPUT", ""), "Output format: console, json (env: HITCHAIN_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("HITCHAIN_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITCHAIN_OUTPUT_FILE)")

	// Network flags
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("HITCHAIN_TIMEOUT", ""), "Default request timeout (e.g., 30s, 1m) (env: HITCHAIN_TIMEOUT)")
	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("HITCHAIN_PROXY", ""), "Proxy URL for HTTP requests (env: HITCHAIN_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HITCHAIN_INSECURE", false), "Disable SSL certificate validation (env: HITCHAIN_INSECURE)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatDocument(path string)
	FormatOutcome(o *runner.Outcome)
	FormatResult(path string, result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// flagConfig turns the run flags into a config layered over the file.
func flagConfig() (*config.Config, error) {
	c := &config.Config{
		Proxy:     proxyFlag,
		MaxPasses: maxPassesFlag,
		Output:    strings.ToLower(outputFlag),
	}
	if timeoutFlag != "" {
		timeout, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		c.Timeout = int(timeout.Milliseconds())
	}
	if maxPassesFlag < 0 {
		return nil, fmt.Errorf("--max-passes must not be negative, got %d", maxPassesFlag)
	}
	if strictFlag {
		c.StrictVariables = config.BoolPtr(true)
	}
	if insecureFlag {
		c.ValidateSSL = config.BoolPtr(false)
	}
	if noColorFlag {
		c.NoColor = config.BoolPtr(true)
	}
	if verboseFlag > 0 {
		c.Verbose = config.BoolPtr(true)
	}
	return c, c.Validate()
}

// parseVars reads repeated KEY=VALUE flags.
func parseVars(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q (expected KEY=VALUE)", f)
		}
		vars[key] = value
	}
	return vars, nil
}

func newWarnFunc(w io.Writer) runner.WarnFunc {
	yellow := color.New(color.FgYellow).SprintFunc()
	return func(format string, args ...any) {
		if quietFlag {
			return
		}
		fmt.Fprintf(w, "%s %s\n", yellow("warning:"), fmt.Sprintf(format, args...))
	}
}

// runTotals tracks what decides the exit code across documents.
type runTotals struct {
	loadErrors int
	failed     int
	dispatched int
	transport  int
}

func (t *runTotals) add(res *runner.RunResult) {
	t.failed += res.Summary.Failed + res.Summary.Errors
	for _, o := range res.Outcomes {
		if o.Attempts == 0 {
			continue
		}
		t.dispatched++
		if o.Kind == runner.KindTransport {
			t.transport++
		}
	}
}

func (t *runTotals) exitCode() int {
	switch {
	case t.loadErrors > 0:
		return ExitLoadError
	case t.dispatched > 0 && t.transport == t.dispatched:
		return ExitNetworkError
	case t.failed > 0:
		return ExitRequestFailure
	default:
		return ExitSuccess
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return exit(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}
	flags, err := flagConfig()
	if err != nil {
		return exit(ExitUsageError, err)
	}
	cfg := fileConfig.Merge(flags)

	overrides, err := parseVars(varFlags)
	if err != nil {
		return exit(ExitUsageError, err)
	}

	files, err := collectFiles(args)
	if err != nil {
		return exit(ExitUsageError, err)
	}
	if len(files) == 0 {
		return exit(ExitUsageError, fmt.Errorf("no .yaml, .yml or .json documents found"))
	}

	var outWriter io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return exit(ExitUsageError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		outWriter = f
	}

	var formatter Formatter
	switch cfg.Output {
	case "json":
		formatter = output.NewJSONFormatter(output.JSONWithWriter(outWriter))
	default: // "console"
		formatter = output.NewConsoleFormatter(
			output.WithWriter(outWriter),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor() || outputFileFlag != ""),
			output.WithQuiet(quietFlag),
		)
	}

	formatter.FormatHeader(version)

	warn := newWarnFunc(cmd.ErrOrStderr())
	client := http.NewClient(
		http.WithTimeout(time.Duration(cfg.Timeout)*time.Millisecond),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithMaxRedirects(cfg.MaxRedirects),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithProxy(cfg.Proxy),
		http.WithDefaultHeaders(cfg.Headers),
	)
	resolver := template.NewResolver(template.WithPolicy(cfg.Policy()))

	var totals runTotals
	start := time.Now()

	for _, file := range files {
		doc, err := document.LoadFile(file, document.WithDefaults(cfg.DocumentDefaults()))
		if err != nil {
			formatter.FormatError(fmt.Errorf("%s: %w", file, err))
			totals.loadErrors++
			continue
		}
		for _, w := range doc.Warnings {
			warn("%s: %s", file, w)
		}

		store, err := newStore()
		if err != nil {
			return exit(ExitConfigError, err)
		}

		r := runner.NewRunner(store,
			runner.WithDispatcher(client),
			runner.WithResolver(resolver),
			runner.WithNameFilter(nameFlag),
			runner.WithOverrides(overrides),
			runner.WithOnOutcome(formatter.FormatOutcome),
			runner.WithWarnFunc(warn),
		)

		formatter.FormatDocument(file)
		result, err := r.Run(context.Background(), doc)
		if err != nil {
			formatter.FormatError(fmt.Errorf("%s: %w", file, err))
			totals.loadErrors++
			continue
		}

		formatter.FormatResult(file, result)
		totals.add(result)
	}

	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(time.Since(start)); err != nil {
			return exit(ExitRequestFailure, fmt.Errorf("error writing output: %w", err))
		}
	}

	if code := totals.exitCode(); code != ExitSuccess {
		return exit(code, nil)
	}
	return nil
}

// newStore builds the variable store shared by one document's requests.
// The .env file and prefixed environment load first, so document variables
// and --var overrides win over them.
func newStore() (*env.Store, error) {
	store := env.NewStore()
	if envFileFlag != "" {
		if err := store.LoadDotEnv(envFileFlag); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	if envPrefixFlag != "" {
		store.SetGlobals(env.LoadSystemEnv(envPrefixFlag))
	}
	return store, nil
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && document.IsDocumentFile(path) && !isToolConfig(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if document.IsDocumentFile(arg) {
			files = append(files, arg)
		}
	}

	return files, nil
}

func isToolConfig(path string) bool {
	base := filepath.Base(path)
	for _, name := range config.ConfigFilenames {
		if base == name {
			return true
		}
	}
	return false
}
