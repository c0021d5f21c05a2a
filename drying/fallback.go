package drying

import (
	"image"
	"math"
)

// Fallback tuning. The result is a crude stand-in for a real edit:
// slightly brighter, higher contrast and less saturated.
const (
	fallbackBrightness = 1.2
	fallbackContrast   = 1.1
	fallbackSaturation = 0.8
)

// FallbackFunc produces a local substitute when remote drying is exhausted.
type FallbackFunc func(img image.Image) (*image.RGBA, error)

// toneCurve maps an input channel value through brightness then contrast.
var toneCurve = buildToneCurve()

func buildToneCurve() [256]uint8 {
	var lut [256]uint8
	for p := 0; p < 256; p++ {
		bright := min(255, int(float64(p)*fallbackBrightness))
		contrasted := int(128 + fallbackContrast*float64(bright-128))
		lut[p] = uint8(max(0, min(255, contrasted)))
	}
	return lut
}

// ApplyFallback returns a brightened, contrast-boosted, desaturated opaque
// copy of img with the same dimensions. It never touches the network and
// does not fail on any image with pixels.
func ApplyFallback(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0)), nil
	}
	out := ToRGB(img)
	pix := out.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r := toneCurve[pix[i]]
		g := toneCurve[pix[i+1]]
		b := toneCurve[pix[i+2]]
		pix[i], pix[i+1], pix[i+2] = desaturate(r, g, b, fallbackSaturation)
	}
	return out, nil
}

// desaturate scales HSV saturation by factor and converts back, truncating
// each channel.
func desaturate(r8, g8, b8 uint8, factor float64) (uint8, uint8, uint8) {
	r := float64(r8) / 255
	g := float64(g8) / 255
	b := float64(b8) / 255

	h, s, v := rgbToHSV(r, g, b)
	r, g, b = hsvToRGB(h, s*factor, v)

	return toByte(r), toByte(g), toByte(b)
}

func toByte(c float64) uint8 {
	return uint8(max(0, min(255, int(c*255))))
}

func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	v = maxc
	if maxc == minc {
		return 0, 0, v
	}
	delta := maxc - minc
	s = delta / maxc
	rc := (maxc - r) / delta
	gc := (maxc - g) / delta
	bc := (maxc - b) / delta
	switch {
	case r == maxc:
		h = bc - gc
	case g == maxc:
		h = 2.0 + rc - bc
	default:
		h = 4.0 + gc - rc
	}
	h = h / 6.0
	h -= math.Floor(h)
	return h, s, v
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	if s == 0 {
		return v, v, v
	}
	i := int(h * 6.0)
	f := h*6.0 - float64(i)
	p := v * (1.0 - s)
	q := v * (1.0 - s*f)
	t := v * (1.0 - s*(1.0-f))
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
