package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate hitchain documents without sending requests",
	Long: `Load hitchain documents and report structural errors, invalid
requests and unknown keys without executing anything.

Examples:
  hitchain validate api.yaml
  hitchain validate ./chains/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exit(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exit(ExitUsageError, fmt.Errorf("no .yaml, .yml or .json documents found"))
	}

	hasErrors := false
	for _, file := range files {
		doc, err := document.LoadFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}

		problems := 0
		for _, c := range doc.Collections {
			if c.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: collection %q: %v\n", file, c.Name, c.Err)
				problems++
			}
			for _, req := range c.Requests {
				if req.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: request %q: %v\n", file, req.Name, req.Err)
					problems++
				}
			}
		}
		for _, w := range doc.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning in %s: %s\n", file, w)
		}

		if problems > 0 {
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d requests)\n", file, len(doc.Requests()))
	}

	if hasErrors {
		return exit(ExitLoadError, fmt.Errorf("validation failed"))
	}

	return nil
}
