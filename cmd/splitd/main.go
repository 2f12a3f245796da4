package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/config"
	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/split/wired"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := config.Default()
	if err := conf.Load(flag.CommandLine); err != nil {
		glog.Exit(err)
	}
	wired.RegisterMetrics()

	runner := framework.NewRunner().HandleSignals()
	d, err := newDaemon(conf)
	if err != nil {
		glog.Exit(err)
	}
	d.start(runner)
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
