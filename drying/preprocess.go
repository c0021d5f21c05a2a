package drying

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/BaSui01/dryingassistant/types"
	xdraw "golang.org/x/image/draw"
)

// ResizePolicy selects how Normalize picks the target resolution.
type ResizePolicy string

const (
	// PolicyAllowList snaps to the closest of AllowedResolutions. Required by
	// the SDXL 1024 engines, which reject any other size.
	PolicyAllowList ResizePolicy = "allowlist"
	// PolicySizeCap only shrinks images whose longer side exceeds MaxSide.
	PolicySizeCap ResizePolicy = "sizecap"
)

// MaxSide is the longest side accepted under PolicySizeCap.
const MaxSide = 1024

// Resolution is a width/height pair.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

func (r Resolution) ratio() float64 { return float64(r.Width) / float64(r.Height) }

// AllowedResolutions lists the supported sizes in tie-break order.
var AllowedResolutions = []Resolution{
	{1024, 1024},
	{1152, 896},
	{1216, 832},
	{1344, 768},
	{1536, 640},
	{640, 1536},
	{768, 1344},
	{832, 1216},
	{896, 1152},
}

// ClosestResolution returns the allowed resolution whose aspect ratio is
// nearest to width/height. Ties go to the earliest entry.
func ClosestResolution(width, height int) Resolution {
	target := float64(width) / float64(height)
	best := AllowedResolutions[0]
	bestDiff := math.Abs(best.ratio() - target)
	for _, r := range AllowedResolutions[1:] {
		if d := math.Abs(r.ratio() - target); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best
}

// IsAllowedResolution reports whether width x height is in AllowedResolutions.
func IsAllowedResolution(width, height int) bool {
	for _, r := range AllowedResolutions {
		if r.Width == width && r.Height == height {
			return true
		}
	}
	return false
}

// CappedResolution scales width x height down so the longer side is at most
// MaxSide, truncating each side and keeping it at least 1.
func CappedResolution(width, height int) Resolution {
	longer := max(width, height)
	if longer <= MaxSide {
		return Resolution{width, height}
	}
	scale := float64(MaxSide) / float64(longer)
	return Resolution{
		Width:  max(1, int(float64(width)*scale)),
		Height: max(1, int(float64(height)*scale)),
	}
}

// Normalizer converts images to opaque RGB and resizes them for the remote
// endpoint.
type Normalizer struct {
	policy ResizePolicy
}

// NewNormalizer creates a normalizer. An empty policy means PolicyAllowList.
func NewNormalizer(policy ResizePolicy) (*Normalizer, error) {
	switch policy {
	case "":
		policy = PolicyAllowList
	case PolicyAllowList, PolicySizeCap:
	default:
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown resize policy %q", policy))
	}
	return &Normalizer{policy: policy}, nil
}

// Policy returns the active policy.
func (n *Normalizer) Policy() ResizePolicy { return n.policy }

// Target returns the resolution Normalize would produce for the given size.
func (n *Normalizer) Target(width, height int) Resolution {
	if n.policy == PolicySizeCap {
		return CappedResolution(width, height)
	}
	return ClosestResolution(width, height)
}

// Normalize returns a new opaque image sized for the endpoint. The input is
// never modified. Images already at the target size are copied without
// resampling, so Normalize is idempotent.
func (n *Normalizer) Normalize(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, types.NewValidationError("image is nil", nil)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, types.NewValidationError(fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy()), nil)
	}

	rgb := ToRGB(img)
	target := n.Target(b.Dx(), b.Dy())

	out := rgb
	if target.Width != b.Dx() || target.Height != b.Dy() {
		out = image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
		xdraw.CatmullRom.Scale(out, out.Bounds(), rgb, rgb.Bounds(), xdraw.Src, nil)
		forceOpaque(out)
	}

	if err := n.check(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Normalizer) check(img *image.RGBA) error {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	switch n.policy {
	case PolicySizeCap:
		if max(w, h) > MaxSide {
			return types.NewError(types.ErrInternalError, fmt.Sprintf("normalized image %dx%d exceeds %d", w, h, MaxSide))
		}
	default:
		if !IsAllowedResolution(w, h) {
			return types.NewError(types.ErrInternalError, fmt.Sprintf("normalized image %dx%d is not an allowed resolution", w, h))
		}
	}
	return nil
}

// ToRGB returns an opaque copy of img with bounds starting at (0,0). Alpha
// is discarded, not composited: each pixel keeps its straight (unpremultiplied)
// color and gets alpha 255.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[di+0] = src.Pix[si+0]
				dst.Pix[di+1] = src.Pix[si+1]
				dst.Pix[di+2] = src.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	}
	return dst
}

// forceOpaque sets every alpha byte to 255. Resampling an opaque source can
// leave 0xfe after rounding.
func forceOpaque(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}
