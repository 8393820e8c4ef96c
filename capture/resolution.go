package capture

import "image"

// Resolution is the size of one eye of a stereo camera.
type Resolution struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Resolution presets of common stereo USB cameras.
var (
	VGA     = Resolution{Name: "vga", Width: 640, Height: 480}
	HD720   = Resolution{Name: "hd720", Width: 1280, Height: 720}
	FHD1080 = Resolution{Name: "fhd1080", Width: 1920, Height: 1080}
)

// Frame rates the same cameras offer.
const (
	Extreme60FPS  = 60
	Fluent30FPS   = 30
	Balanced15FPS = 15
	Slow8FPS      = 8
)

// Size is the per eye image size.
func (r Resolution) Size() image.Point {
	return image.Pt(r.Width, r.Height)
}

// SideBySideSize is the size of the combined frame the camera delivers.
func (r Resolution) SideBySideSize() image.Point {
	return image.Pt(2*r.Width, r.Height)
}

// ResolutionByName looks up a preset by name.
func ResolutionByName(name string) (Resolution, bool) {
	for _, r := range []Resolution{VGA, HD720, FHD1080} {
		if r.Name == name {
			return r, true
		}
	}
	return Resolution{}, false
}
