package drying

import (
	"image"
	"image/color"
	"testing"

	"github.com/BaSui01/dryingassistant/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func filledRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func mustNormalizer(t *testing.T, p ResizePolicy) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(p)
	require.NoError(t, err)
	return n
}

func TestClosestResolution(t *testing.T) {
	tests := []struct {
		w, h int
		want Resolution
	}{
		{1000, 1000, Resolution{1024, 1024}},
		{2000, 500, Resolution{1536, 640}},
		{500, 2000, Resolution{640, 1536}},
		{1920, 1080, Resolution{1344, 768}},
		{1080, 1920, Resolution{768, 1344}},
		{800, 600, Resolution{1152, 896}},
		{600, 800, Resolution{896, 1152}},
		{1, 1, Resolution{1024, 1024}},
		{10000, 1, Resolution{1536, 640}},
	}

	for _, tt := range tests {
		t.Run(Resolution{tt.w, tt.h}.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ClosestResolution(tt.w, tt.h))
		})
	}
}

func TestCappedResolution(t *testing.T) {
	assert.Equal(t, Resolution{800, 600}, CappedResolution(800, 600))
	assert.Equal(t, Resolution{1024, 1024}, CappedResolution(1024, 1024))
	assert.Equal(t, Resolution{1024, 576}, CappedResolution(1920, 1080))
	assert.Equal(t, Resolution{1024, 256}, CappedResolution(2000, 500))
	assert.Equal(t, Resolution{1, 1024}, CappedResolution(1, 5000))
}

func TestNewNormalizer(t *testing.T) {
	n, err := NewNormalizer("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAllowList, n.Policy())

	_, err = NewNormalizer("stretch")
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
}

func TestNormalize_WideImageSnapsToWidestEntry(t *testing.T) {
	src := filledRGBA(2000, 500)
	before := append([]uint8(nil), src.Pix...)

	out, err := mustNormalizer(t, PolicyAllowList).Normalize(src)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 1536, 640), out.Bounds())
	assert.Equal(t, before, src.Pix, "input must not be modified")
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0xff {
			t.Fatalf("alpha at byte %d is %d", i, out.Pix[i])
		}
	}
}

func TestNormalize_DropsAlphaWithoutCompositing(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1024, 1024))
	src.SetNRGBA(3, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.SetNRGBA(5, 6, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	out, err := mustNormalizer(t, PolicyAllowList).Normalize(src)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, out.RGBAAt(3, 4))
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, out.RGBAAt(5, 6))
}

func TestNormalize_PalettedAndGray(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 64, 48), color.Palette{color.Black, color.RGBA{R: 255, A: 255}})
	pal.SetColorIndex(1, 1, 1)
	gray := image.NewGray(image.Rect(0, 0, 48, 64))

	for _, src := range []image.Image{pal, gray} {
		out, err := mustNormalizer(t, PolicyAllowList).Normalize(src)
		require.NoError(t, err)
		assert.True(t, out.Opaque())
		assert.True(t, IsAllowedResolution(out.Bounds().Dx(), out.Bounds().Dy()))
	}
}

func TestNormalize_OffsetBounds(t *testing.T) {
	src := filledRGBA(1200, 1000).SubImage(image.Rect(100, 100, 1124, 1124))

	out, err := mustNormalizer(t, PolicyAllowList).Normalize(src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1024, 1024), out.Bounds())

	want := src.At(100, 100).(color.RGBA)
	assert.Equal(t, want, out.RGBAAt(0, 0))
}

func TestNormalize_Empty(t *testing.T) {
	n := mustNormalizer(t, PolicyAllowList)

	_, err := n.Normalize(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	_, err = n.Normalize(nil)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestNormalize_SizeCap(t *testing.T) {
	n := mustNormalizer(t, PolicySizeCap)

	out, err := n.Normalize(filledRGBA(2000, 500))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1024, 256), out.Bounds())

	small := filledRGBA(300, 200)
	out, err = n.Normalize(small)
	require.NoError(t, err)
	assert.Equal(t, small.Pix, out.Pix)
}

func TestNormalize_Idempotent(t *testing.T) {
	sizes := [][2]int{{2000, 500}, {640, 480}, {333, 1000}, {1024, 1024}}
	n := mustNormalizer(t, PolicyAllowList)

	for _, s := range sizes {
		once, err := n.Normalize(filledRGBA(s[0], s[1]))
		require.NoError(t, err)
		twice, err := n.Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once.Bounds(), twice.Bounds())
		assert.Equal(t, once.Pix, twice.Pix)
	}
}

func TestTarget_AlwaysAllowed(t *testing.T) {
	n := mustNormalizer(t, PolicyAllowList)
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(1, 20000).Draw(rt, "w")
		h := rapid.IntRange(1, 20000).Draw(rt, "h")
		got := n.Target(w, h)
		if !IsAllowedResolution(got.Width, got.Height) {
			rt.Fatalf("target %s for %dx%d is not allowed", got, w, h)
		}
		// Already-allowed sizes map to themselves.
		if again := n.Target(got.Width, got.Height); again != got {
			rt.Fatalf("target of %s is %s", got, again)
		}
	})
}

func TestTarget_SizeCapBounds(t *testing.T) {
	n := mustNormalizer(t, PolicySizeCap)
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(1, 20000).Draw(rt, "w")
		h := rapid.IntRange(1, 20000).Draw(rt, "h")
		got := n.Target(w, h)
		if max(got.Width, got.Height) > MaxSide {
			rt.Fatalf("target %s exceeds %d", got, MaxSide)
		}
		if got.Width < 1 || got.Height < 1 {
			rt.Fatalf("target %s has an empty side", got)
		}
		if max(w, h) <= MaxSide && (got.Width != w || got.Height != h) {
			rt.Fatalf("small image %dx%d resized to %s", w, h, got)
		}
		if max(w, h) > MaxSide && min(w, h)*MaxSide/max(w, h) > 0 {
			// aspect ratio preserved within truncation
			ratioIn := float64(w) / float64(h)
			ratioOut := float64(got.Width) / float64(got.Height)
			tolerance := ratioIn * (1.0/float64(min(got.Width, got.Height)) + 1.0/MaxSide)
			if diff := ratioIn - ratioOut; diff > tolerance+1e-9 || -diff > tolerance+1e-9 {
				rt.Fatalf("ratio drift for %dx%d -> %s", w, h, got)
			}
		}
	})
}

func TestNormalize_SizeCapProperty(t *testing.T) {
	n := mustNormalizer(t, PolicySizeCap)
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(1, 1300).Draw(rt, "w")
		h := rapid.IntRange(1, 64).Draw(rt, "h")
		out, err := n.Normalize(image.NewGray(image.Rect(0, 0, w, h)))
		if err != nil {
			rt.Fatalf("normalize %dx%d: %v", w, h, err)
		}
		if max(out.Bounds().Dx(), out.Bounds().Dy()) > MaxSide {
			rt.Fatalf("output %v too large", out.Bounds())
		}
	})
}
