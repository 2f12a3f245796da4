package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/split.go/pkg/cli/sh"
	"github.com/robotalks/split.go/pkg/config"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	conf := config.Default()
	if err := conf.Load(flag.CommandLine); err != nil {
		log.Fatalln(err)
	}
	sh.Main(conf)
}
