// Package cmd implements the hitchain CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the requests of one or more documents
//   - validate: Load documents and report errors without sending anything
//   - list: Display the collections and requests of documents
//   - init: Create an example document and config file
//   - completion: Generate shell completion scripts
//   - version: Show hitchain version information
//
// Most run flags default from HITCHAIN_* environment variables and
// override the tool config file.
package cmd
