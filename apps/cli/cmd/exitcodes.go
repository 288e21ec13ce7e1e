package cmd

// Exit codes for hitchain CLI
const (
	// ExitSuccess indicates every request passed or was skipped
	ExitSuccess = 0

	// ExitRequestFailure indicates one or more requests failed or errored
	ExitRequestFailure = 1

	// ExitLoadError indicates a document could not be loaded
	ExitLoadError = 2

	// ExitConfigError indicates a tool configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates every dispatched request hit a transport error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
