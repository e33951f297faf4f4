package imgdiff

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompareIdentical(t *testing.T) {
	a := solid(10, 5, color.White)
	res, err := Compare(a, solid(10, 5, color.White), 0)
	require.NoError(t, err)
	assert.True(t, res.Identical())
	assert.Equal(t, 50, res.Total())
	assert.Zero(t, res.Ratio())
	assert.True(t, res.Bounds.Empty())
}

func TestCompareChangedRegion(t *testing.T) {
	a := solid(10, 10, color.White)
	b := solid(10, 10, color.White)
	b.Set(2, 3, color.RGBA{R: 200, G: 220, B: 255, A: 255})
	b.Set(5, 7, color.Black)

	res, err := Compare(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Changed)
	assert.InDelta(t, 0.02, res.Ratio(), 1e-9)
	assert.Equal(t, image.Rect(2, 3, 6, 8), res.Bounds)
	assert.Equal(t, uint8(0xff), res.Mask.GrayAt(2, 3).Y)
	assert.Equal(t, uint8(0), res.Mask.GrayAt(0, 0).Y)
}

func TestCompareTolerance(t *testing.T) {
	a := solid(2, 2, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	b := solid(2, 2, color.RGBA{R: 103, G: 100, B: 98, A: 255})

	res, err := Compare(a, b, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Changed)

	res, err = Compare(a, b, 3)
	require.NoError(t, err)
	assert.True(t, res.Identical())
}

func TestCompareOffsetBounds(t *testing.T) {
	a := solid(4, 4, color.White)
	b := solid(6, 6, color.White).SubImage(image.Rect(2, 2, 6, 6))
	res, err := Compare(a, b, 0)
	require.NoError(t, err)
	assert.True(t, res.Identical())
}

func TestCompareSizeMismatch(t *testing.T) {
	_, err := Compare(solid(2, 2, color.White), solid(3, 2, color.White), 0)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, solid(8, 8, color.White))
	changed := solid(8, 8, color.White)
	changed.Set(0, 0, color.Black)
	writePNG(t, b, changed)

	res, err := CompareFiles(context.Background(), a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)

	mask := filepath.Join(dir, "mask.png")
	require.NoError(t, res.WriteMask(mask))
	img, err := Load(mask)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = CompareFiles(context.Background(), a, filepath.Join(dir, "missing.png"), 0)
	assert.Error(t, err)
}

func TestLoadRejectsNonPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
