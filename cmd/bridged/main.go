package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/env"
	"github.com/robotalks/bridge.go/pkg/l0/motor"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()

	conf := env.MustNewConfig()
	dev := conf.MustNewEnv().NewDevice(motor.LogPWMs(conf.Motor.Count))
	loop := framework.NewLoop()
	loop.Interval = conf.LoopInterval
	loop.Add(dev).RunOrFail()
}
