package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
ecodeli delivery tracking service

Usage:
  tracking [flags]

Flags:
  -config-path string   path to a YAML config file (environment overrides it)
  -help                 print this message

Configuration is read from the environment; see config/config.go for the
full list of variables and their defaults.
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
