//go:build !opencv

package cli

import (
	"github.com/pkg/errors"

	"go.viam.com/stereocalib/config"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
)

func newOpenCVDetector(*config.Config) (chessboard.Detector, error) {
	return nil, errors.New("the opencv detector needs a build with -tags opencv")
}
