package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitchain/packages/core/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitchain project",
	Long: `Initialize a new hitchain project in the current directory.

This creates:
  - .hitchain.config.json  - Tool configuration with defaults
  - example.yaml           - Example request chain

Examples:
  hitchain init
  hitchain init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

// Scaffold types keep key order stable in the generated YAML.
type scaffoldDocument struct {
	Name        string               `yaml:"name"`
	Variables   map[string]string    `yaml:"variables"`
	Collections []scaffoldCollection `yaml:"collections"`
}

type scaffoldCollection struct {
	Name      string            `yaml:"name"`
	Execution map[string]any    `yaml:"execution,omitempty"`
	Requests  []scaffoldRequest `yaml:"requests"`
}

type scaffoldRequest struct {
	Name    string            `yaml:"name"`
	Method  string            `yaml:"method,omitempty"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    map[string]any    `yaml:"body,omitempty"`
	Retry   map[string]any    `yaml:"retry,omitempty"`
	Expect  map[string]any    `yaml:"expect,omitempty"`
	Extract map[string]string `yaml:"extract,omitempty"`
}

func exampleDocument() scaffoldDocument {
	return scaffoldDocument{
		Name: "example",
		Variables: map[string]string{
			"BASE_URL": "${API_URL:http://localhost:3000}",
		},
		Collections: []scaffoldCollection{
			{
				Name: "resources",
				Requests: []scaffoldRequest{
					{
						Name: "health",
						URL:  "${BASE_URL}/health",
						Retry: map[string]any{
							"count": 3,
							"delay": 500,
							"on":    []int{502, 503},
						},
						Expect: map[string]any{"status": 200},
					},
					{
						Name:   "create",
						Method: "POST",
						URL:    "${BASE_URL}/resources",
						Headers: map[string]string{
							"X-Request-Id": "${UUID}",
						},
						Body: map[string]any{
							"name":      "Test Resource",
							"createdAt": "${DATE:YYYY-MM-DD}",
						},
						Expect: map[string]any{
							"status": []int{200, 201},
							"body":   map[string]any{"id": "*", "name": "Test Resource"},
						},
						Extract: map[string]string{"RESOURCE_ID": "$.id"},
					},
					{
						Name: "fetch",
						URL:  "${BASE_URL}/resources/${RESOURCE_ID}",
						Expect: map[string]any{
							"status": 200,
							"body":   map[string]any{"name": "/^Test/"},
						},
					},
				},
			},
			{
				Name:      "listing",
				Execution: map[string]any{"mode": "parallel", "maxConcurrent": 2},
				Requests: []scaffoldRequest{
					{Name: "page 1", URL: "${BASE_URL}/resources?page=1", Expect: map[string]any{"status": 200}},
					{Name: "page 2", URL: "${BASE_URL}/resources?page=2", Expect: map[string]any{"status": 200}},
				},
			},
		},
	}
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	exampleFile := filepath.Join(cwd, "example.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exit(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Headers = map[string]string{"User-Agent": "hitchain/" + version}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	exampleYAML, err := yaml.Marshal(exampleDocument())
	if err != nil {
		return fmt.Errorf("failed to render example: %w", err)
	}
	if err := os.WriteFile(exampleFile, exampleYAML, 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitchain project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitchain run example.yaml' to execute the example chain.\n")

	return nil
}
