package drying

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/BaSui01/dryingassistant/internal/pool"
	"github.com/BaSui01/dryingassistant/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions are the file extensions the batch tool picks up.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

// IsSupportedFile reports whether name has a supported image extension.
func IsSupportedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// DecodeImage decodes PNG, JPEG, GIF, BMP or WebP data. Undecodable input
// is a validation error.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, "", types.NewValidationError("cannot decode image", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", types.NewValidationError(fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy()), nil)
	}
	return img, format, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed, BufferPool: pool.PNGEncoders}
	if err := enc.Encode(w, img); err != nil {
		return types.NewError(types.ErrInternalError, "failed to encode PNG").WithCause(err)
	}
	return nil
}

// EncodePNGBase64 returns img as base64-encoded PNG.
func EncodePNGBase64(img image.Image) (string, error) {
	buf := pool.ImageBuffers.Get()
	defer pool.ImageBuffers.Put(buf)
	if err := EncodePNG(buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
