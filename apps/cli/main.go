package main

import "github.com/abdul-hamid-achik/hitchain/apps/cli/cmd"

// set by -ldflags at release time
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
