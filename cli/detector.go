package cli

import (
	"go.viam.com/stereocalib/config"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
)

func newDetector(cfg *config.Config) (chessboard.Detector, error) {
	if cfg.Detector.Backend == config.DetectorOpenCV {
		return newOpenCVDetector(cfg)
	}
	return chessboard.NewDetector(cfg.Pattern.Cols, cfg.Pattern.Rows, cfg.DetectionConfiguration()), nil
}
