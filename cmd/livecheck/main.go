// Package main provides the livecheck command line entry point
package main

import "github.com/MrCodeEU/livecheck/internal/cli"

func main() {
	cli.Execute()
}
