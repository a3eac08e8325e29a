// Package flags adds the flags common to the hostd daemon's entrypoints:
// a log-level flag and a version flag, plus the logrus bootstrap that goes
// with them.
package flags

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/distantsrv/hostd/pkg/version"
)

// ConfigureAndParse adds flags common to all hostd processes to cmd, parses
// args, and applies the resulting log level. Call after all other flags on
// cmd have been configured.
func ConfigureAndParse(cmd *flag.FlagSet, args []string) {
	logLevel := cmd.String("log-level", log.InfoLevel.String(),
		"log level, must be one of: panic, fatal, error, warn, info, debug")
	printVersion := cmd.Bool("version", false, "print version and exit")

	if err := cmd.Parse(args); err != nil {
		log.Fatalf("failed to parse flags: %s", err)
	}

	setLogLevel(*logLevel)
	maybePrintVersionAndExit(*printVersion)
}

func setLogLevel(logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log-level: %s", logLevel)
	}
	log.SetLevel(level)
}

func maybePrintVersionAndExit(printVersion bool) {
	if printVersion {
		fmt.Printf("%s (protocol %s)\n", version.Version, version.Protocol)
		os.Exit(0)
	}
	log.Infof("running version %s (protocol %s)", version.Version, version.Protocol)
}
