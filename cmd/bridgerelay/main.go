package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/env"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()

	e := env.MustNewConfig().MustNewEnv()
	relay, err := e.NewRelay()
	if err != nil {
		glog.Exit(err)
	}
	framework.NewLoop().Add(e).AddRunnable(relay).RunOrFail()
}
