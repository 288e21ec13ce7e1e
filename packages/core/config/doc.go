// Package config loads the hitchain tool configuration.
//
// A JSON file named .hitchain.config.json, hitchain.config.json, .hitchainrc
// or .hitchainrc.json in the working directory, or one given explicitly, sets
// transport options, default request headers, default retry and concurrency
// values for documents, and template strictness. Command-line flags are
// merged on top with Merge.
package config
