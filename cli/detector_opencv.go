//go:build opencv

package cli

import (
	"go.viam.com/stereocalib/config"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
)

func newOpenCVDetector(cfg *config.Config) (chessboard.Detector, error) {
	det := chessboard.NewOpenCVDetector(cfg.Pattern.Cols, cfg.Pattern.Rows)
	sub := cfg.DetectionConfiguration().SubPix
	det.HalfWindow, det.Criteria = sub.HalfWindow, sub.Criteria
	return det, nil
}
