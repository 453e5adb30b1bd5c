package main

import "cinema-checkout-cli/cmd"

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.Execute(cmd.BuildInfo{Version: version, Commit: commit})
}
