package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"rover.yaml" description:"Path to the YAML configuration file"`

	Run   RunCommand   `command:"run" alias:"drive" description:"Start the drive loop"`
	Setup SetupCommand `command:"setup" description:"Pick the serial port and detection model, then write the config file"`
	Ports PortsCommand `command:"ports" description:"List serial ports and flag likely microcontrollers"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Rover - camera and distance sensor driven robot controller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
