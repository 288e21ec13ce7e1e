package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the collections and requests of hitchain documents",
	Long: `List the collections and requests declared in hitchain documents.

Examples:
  hitchain list api.yaml
  hitchain list ./chains/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exit(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exit(ExitUsageError, fmt.Errorf("no .yaml, .yml or .json documents found"))
	}

	out := cmd.OutOrStdout()
	for _, file := range files {
		doc, err := document.LoadFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(out, "\n%s:\n", file)
		for _, c := range doc.Collections {
			fmt.Fprintf(out, "  %s (%s", c.Name, c.Execution.Mode)
			if c.Execution.Mode == document.ModeParallel {
				fmt.Fprintf(out, ", max %d", c.Execution.MaxConcurrent)
			}
			fmt.Fprintf(out, ")\n")

			for _, req := range c.Requests {
				fmt.Fprintf(out, "    - %s  %s %s\n", req.Name, req.Method, req.URL)
				if req.Skip != "" {
					fmt.Fprintf(out, "      skip: %s\n", req.Skip)
				}
				if len(req.Extract) > 0 {
					names := make([]string, len(req.Extract))
					for i, rule := range req.Extract {
						names[i] = rule.Name
					}
					fmt.Fprintf(out, "      extracts: %v\n", names)
				}
			}
		}
	}

	return nil
}
