// Package cli contains the stereocalib command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/stereocalib/logging"
)

const (
	// Flags.
	debugFlag      = "debug"
	configFlag     = "config"
	recordFlag     = "record"
	stereoFlag     = "stereo"
	plotFlag       = "plot"
	leftFlag       = "left"
	rightFlag      = "right"
	imageFlag      = "image"
	outFlag        = "out"
	outLeftFlag    = "out-left"
	outRightFlag   = "out-right"
	alphaFlag      = "alpha"
	colsFlag       = "cols"
	rowsFlag       = "rows"
	squarePxFlag   = "square-px"
	noCropFlag     = "no-crop"
	outputJSONFlag = "json"
)

func configFlagDef() cli.Flag {
	return &cli.PathFlag{
		Name:     configFlag,
		Aliases:  []string{"c"},
		Usage:    "load the run description from `FILE`",
		Required: true,
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "stereocalib",
		Usage:           "calibrate and rectify stereo cameras from chessboard images",
		HideHelpCommand: true,
		Before: func(c *cli.Context) error {
			if c.Bool(debugFlag) {
				logging.ReplaceGlobal(logging.NewDebugLogger("stereocalib"))
			}
			return nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "mono",
				Usage:  "calibrate a single camera from a directory of chessboard images",
				Flags:  []cli.Flag{configFlagDef()},
				Action: MonoAction,
			},
			{
				Name:   "stereo",
				Usage:  "calibrate and rectify a camera pair",
				Flags:  []cli.Flag{configFlagDef()},
				Action: StereoAction,
			},
			{
				Name:  "rectify",
				Usage: "rectify a stereo image pair with a stored stereo record",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: recordFlag, Usage: "stereo record `FILE`", Required: true},
					&cli.PathFlag{Name: leftFlag, Usage: "left image", Required: true},
					&cli.PathFlag{Name: rightFlag, Usage: "right image", Required: true},
					&cli.PathFlag{Name: outLeftFlag, Usage: "rectified left image", Required: true},
					&cli.PathFlag{Name: outRightFlag, Usage: "rectified right image", Required: true},
					&cli.Float64Flag{Name: alphaFlag, Usage: "re-rectify with this alpha first", Value: -1},
				},
				Action: RectifyAction,
			},
			{
				Name:  "undistort",
				Usage: "undistort one image with a stored mono record",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: recordFlag, Usage: "mono record `FILE`", Required: true},
					&cli.PathFlag{Name: imageFlag, Usage: "image to undistort", Required: true},
					&cli.PathFlag{Name: outFlag, Usage: "undistorted image", Required: true},
					&cli.BoolFlag{Name: noCropFlag, Usage: "keep the full remapped image instead of cropping to the valid region"},
				},
				Action: UndistortAction,
			},
			{
				Name:  "score",
				Usage: "print the reprojection error report of a stored record",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: recordFlag, Usage: "record `FILE`", Required: true},
					&cli.BoolFlag{Name: stereoFlag, Usage: "the record is a stereo record"},
					&cli.PathFlag{Name: plotFlag, Usage: "also write a per view error chart to `FILE`"},
					&cli.BoolFlag{Name: outputJSONFlag, Usage: "print the summaries as JSON"},
				},
				Action: ScoreAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the run description",
				Action: SchemaAction,
			},
			{
				Name:  "pattern",
				Usage: "render a printable chessboard",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: colsFlag, Usage: "inner corners per row", Value: 9},
					&cli.IntFlag{Name: rowsFlag, Usage: "inner corner rows", Value: 6},
					&cli.IntFlag{Name: squarePxFlag, Usage: "square size in pixels", Value: 100},
					&cli.PathFlag{Name: outFlag, Usage: "output image", Required: true},
				},
				Action: PatternAction,
			},
			{
				Name:   "version",
				Usage:  "print version info for this program",
				Action: VersionAction,
			},
		},
		Writer:    out,
		ErrWriter: errOut,
	}
}
