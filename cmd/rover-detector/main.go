// Command rover-detector is a scripted stand-in for the detection process.
// It speaks the same msgpack protocol on stdin/stdout as a real model host
// but replays detections from a YAML scene file, so the drive loop can be
// bench tested without a camera or trained weights.
package main

import (
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/rover/pkg/vision"
)

type Options struct {
	Model     string  `long:"model" required:"true" description:"Path to the detection model (checked, not loaded)"`
	ImageSize int     `long:"imgsz" default:"640" description:"Frame width reported for captures"`
	Conf      float64 `long:"conf" default:"0.85" description:"Drop detections below this confidence"`
	Camera    int     `long:"camera" default:"0" description:"Camera index, must be >= 0"`
	Scene     string  `long:"scene" env:"ROVER_SCENE" description:"YAML file of scripted detections per frame"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// stdout carries the protocol, logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	b := newScripted(opts, logger)
	if err := vision.Serve(os.Stdin, os.Stdout, b); err != nil {
		logger.Error("serve failed", "error", err)
		os.Exit(1)
	}
}
