package pixel

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads an image in any registered format. When autoOrient is set the
// EXIF orientation tag is applied so rotated photos hash like upright ones.
func Decode(r io.Reader, autoOrient bool) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(autoOrient))
}

// Open decodes the image file at path.
func Open(path string, autoOrient bool) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(autoOrient))
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"catmullrom": imaging.CatmullRom,
	"lanczos":    imaging.Lanczos,
}

// ParseFilter maps a filter name (nearest, box, linear, catmullrom, lanczos)
// to its imaging filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("pixel: unknown resample filter %q", name)
	}
	return f, nil
}

// FilterName returns the name ParseFilter accepts for f. Filters outside that
// set are named by their support and a few kernel samples, so two filters
// with the same name resample identically.
func FilterName(f imaging.ResampleFilter) string {
	fp := filterFingerprint(f)
	for name, known := range filters {
		if filterFingerprint(known) == fp {
			return name
		}
	}
	return fp
}

func filterFingerprint(f imaging.ResampleFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "support=%g", f.Support)
	if f.Kernel == nil || f.Support <= 0 {
		return b.String()
	}
	for _, x := range []float64{0.25, 0.5, 0.75, 1.25, 1.75, 2.5} {
		fmt.Fprintf(&b, ",%.9g", f.Kernel(x))
	}
	return b.String()
}
