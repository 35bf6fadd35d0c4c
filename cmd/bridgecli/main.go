package main

//go-build: CGO_ENABLED=0

import (
	"github.com/robotalks/bridge.go/pkg/cli/sh"
	"github.com/robotalks/bridge.go/pkg/l0/env"
)

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
