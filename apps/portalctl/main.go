package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/services/logger"
)

func main() {
	conf := core.NewConfig()

	// the CLI reports to Rollbar like the portal, but keeps its own output clean
	std := log.New(ioutil.Discard, "PORTALCTL : ", log.LstdFlags)
	if conf.Debug {
		std.SetOutput(os.Stderr)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Flush()

	cli := newCommandLine(conf, logger, os.Stdout, os.Stderr)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		logger.Flush()
		os.Exit(1)
	}
}
