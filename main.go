package main

import (
	"context"
	"os"

	"github.com/arribada/audiocontroller/cmd"
	"github.com/arribada/audiocontroller/internal/buildinfo"
)

// buildDate and version are set at build time with -ldflags
var (
	buildDate string
	version   string
)

func main() {
	build := buildinfo.NewContext(version, buildDate)
	os.Exit(cmd.Execute(context.Background(), build, os.Args[1:], os.Stdout, os.Stderr))
}
