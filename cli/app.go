// Package cli contains the sparsestereo command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagLeft        = "left"
	flagRight       = "right"
	flagCalibration = "calibration"
	flagConfig      = "config"
	flagORBConfig   = "orb-config"
	flagExtractor   = "extractor"
	flagFull        = "full"
	flagBlur        = "blur"
	flagDebug       = "debug"

	extractorCPU         = "cpu"
	extractorSingleQueue = "device-single"
	extractorMultiQueue  = "device-multi"
)

var app = &cli.App{
	Name:            "sparsestereo",
	Usage:           "triangulate sparse 3D points from a calibrated stereo pair",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "match",
			Usage: "match the features of a stereo pair and print the triangulated points",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     flagLeft,
					Required: true,
					Usage:    "left image `FILE`",
				},
				&cli.PathFlag{
					Name:     flagRight,
					Required: true,
					Usage:    "right image `FILE`",
				},
				&cli.PathFlag{
					Name:     flagCalibration,
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "stereo calibration `FILE`",
				},
				&cli.PathFlag{
					Name:  flagConfig,
					Usage: "matcher configuration `FILE`",
				},
				&cli.PathFlag{
					Name:  flagORBConfig,
					Usage: "ORB configuration `FILE`",
				},
				&cli.StringFlag{
					Name:  flagExtractor,
					Value: extractorCPU,
					Usage: "feature extractor: " + extractorCPU + ", " + extractorSingleQueue + " or " + extractorMultiQueue,
				},
				&cli.BoolFlag{
					Name:  flagFull,
					Usage: "run the full pipeline and print residual statistics",
				},
				&cli.Float64Flag{
					Name:  flagBlur,
					Usage: "gaussian blur sigma applied to both images before extraction",
				},
			},
			Action: MatchAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
