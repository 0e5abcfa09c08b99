// Package imagecompare diffs renderer screenshots against reference images.
package imagecompare

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
)

// DefaultThreshold is the difference percentage above which a comparison
// fails.
const DefaultThreshold = 1.0

// Channels compared per pixel. Alpha is ignored.
const Channels = 3

var ErrSizeMismatch = errors.New("image sizes differ")

// Timings records where CompareFiles spent its time.
type Timings struct {
	Load, Diff, Save time.Duration
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (t Timings) String() string {
	return fmt.Sprintf("loading: %.3fms, diffing: %.3fms, saving: %.3fms; total: %.3fms",
		ms(t.Load), ms(t.Diff), ms(t.Save), ms(t.Load+t.Diff+t.Save))
}

// Result describes the difference between two images.
type Result struct {
	Width, Height int
	Sum           uint64      // sum of absolute channel differences
	Diff          *image.RGBA // per-channel absolute differences, opaque
	Timings       Timings     // set by CompareFiles
}

// Percent returns the difference relative to the largest possible one.
func (r *Result) Percent() float64 {
	total := float64(r.Width) * float64(r.Height) * Channels * 256
	if total == 0 {
		return 0
	}
	return float64(r.Sum) * 100 / total
}

// Over reports whether the difference exceeds threshold percent.
func (r *Result) Over(threshold float64) bool {
	return r.Percent() > threshold
}

// Identical reports whether the images matched exactly.
func (r *Result) Identical() bool {
	return r.Sum == 0
}

// nrgbaAt returns the stored, not premultiplied, channels at (x, y). Pixels
// with partial alpha compare by the values written to the file.
func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n.NRGBAAt(x, y)
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

// Compare computes the per-pixel difference of a and b, which must have
// the same dimensions.
func Compare(a, b image.Image) (*Result, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}

	w, h := ab.Dx(), ab.Dy()
	res := &Result{
		Width:  w,
		Height: h,
		Diff:   image.NewRGBA(image.Rect(0, 0, w, h)),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ca := nrgbaAt(a, ab.Min.X+x, ab.Min.Y+y)
			cb := nrgbaAt(b, bb.Min.X+x, bb.Min.Y+y)
			d := color.RGBA{
				R: absdiff(ca.R, cb.R),
				G: absdiff(ca.G, cb.G),
				B: absdiff(ca.B, cb.B),
				A: 0xff,
			}
			res.Diff.SetRGBA(x, y, d)
			res.Sum += uint64(d.R) + uint64(d.G) + uint64(d.B)
		}
	}
	return res, nil
}

func absdiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// encoderFor picks the image format from the file extension, defaulting to
// PNG.
func encoderFor(fn string) imgio.Encoder {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".bmp":
		return imgio.BMPEncoder()
	case ".tga":
		return TGAEncoder()
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(90)
	default:
		return imgio.PNGEncoder()
	}
}

// SaveDiff writes the difference image to fn.
func (r *Result) SaveDiff(fn string) error {
	return imgio.Save(fn, r.Diff, encoderFor(fn))
}

// CompareFiles loads two images, compares them and, when diffFN is not
// empty, saves the difference image.
func CompareFiles(aFN, bFN, diffFN string) (*Result, error) {
	start := time.Now()
	a, err := imgio.Open(aFN)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", aFN, err)
	}
	b, err := imgio.Open(bFN)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", bFN, err)
	}
	loaded := time.Now()

	res, err := Compare(a, b)
	if err != nil {
		return nil, fmt.Errorf("%s vs %s: %w", aFN, bFN, err)
	}
	diffed := time.Now()
	res.Timings.Load = loaded.Sub(start)
	res.Timings.Diff = diffed.Sub(loaded)

	if diffFN != "" {
		if err := res.SaveDiff(diffFN); err != nil {
			return res, err
		}
		res.Timings.Save = time.Since(diffed)
	}
	return res, nil
}
