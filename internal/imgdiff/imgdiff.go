// Package imgdiff compares two screenshots pixel by pixel.
package imgdiff

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/sync/errgroup"
)

// ErrSizeMismatch is returned when the two images differ in dimensions.
var ErrSizeMismatch = errors.New("images differ in size")

// Result summarizes the difference between two images.
type Result struct {
	Width   int
	Height  int
	Changed int
	// Bounds encloses every changed pixel. Empty when nothing changed.
	Bounds image.Rectangle
	// Mask is white where pixels differ and black elsewhere.
	Mask *image.Gray
}

// Total is the number of compared pixels.
func (r Result) Total() int { return r.Width * r.Height }

// Ratio is the fraction of changed pixels.
func (r Result) Ratio() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.Changed) / float64(r.Total())
}

// Identical reports whether no pixel changed.
func (r Result) Identical() bool { return r.Changed == 0 }

// Compare diffs a against b. A pixel counts as changed when any channel
// differs by more than tolerance (0-255).
func Compare(a, b image.Image, tolerance uint8) (Result, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return Result{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	res := Result{
		Width:  ab.Dx(),
		Height: ab.Dy(),
		Mask:   image.NewGray(image.Rect(0, 0, ab.Dx(), ab.Dy())),
	}
	tol := uint32(tolerance) * 0x101
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			if !pixelEqual(a.At(ab.Min.X+x, ab.Min.Y+y), b.At(bb.Min.X+x, bb.Min.Y+y), tol) {
				res.Changed++
				res.Mask.SetGray(x, y, color.Gray{Y: 0xff})
				res.Bounds = res.Bounds.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return res, nil
}

func pixelEqual(p, q color.Color, tol uint32) bool {
	pr, pg, pb, pa := p.RGBA()
	qr, qg, qb, qa := q.RGBA()
	return within(pr, qr, tol) && within(pg, qg, tol) && within(pb, qb, tol) && within(pa, qa, tol)
}

func within(a, b, tol uint32) bool {
	if a > b {
		return a-b <= tol
	}
	return b-a <= tol
}

// CompareFiles loads two PNG files concurrently and compares them.
func CompareFiles(ctx context.Context, pathA, pathB string, tolerance uint8) (Result, error) {
	var a, b image.Image
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = Load(pathA)
		return err
	})
	g.Go(func() (err error) {
		b, err = Load(pathB)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Compare(a, b, tolerance)
}

// Load decodes a PNG file.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// WriteMask saves the diff mask as a PNG.
func (r Result) WriteMask(path string) error {
	if r.Mask == nil {
		return errors.New("imgdiff: no mask")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, r.Mask); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
