// Package imageprep implements the ImagePreparer component: decoding an
// image, downsampling oversized images, and encoding the result as a
// base64 data URL for a VLClient call.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// Config controls downsampling behavior.
type Config struct {
	// MaxPixels is the width*height above which an image is downsampled.
	MaxPixels int
	// TargetLongestSide is the longest-edge size an oversized image is
	// downsampled to, preserving aspect ratio.
	TargetLongestSide int
	// JPEGQuality is the quality used when re-encoding (1-100).
	JPEGQuality int
}

// DefaultConfig returns sensible defaults: images over ~2 megapixels are
// downsampled to a 1568px longest edge at quality 85, a safe default for
// most vision-language model context budgets.
func DefaultConfig() Config {
	return Config{
		MaxPixels:         2_000_000,
		TargetLongestSide: 1568,
		JPEGQuality:       85,
	}
}

// Preparer prepares images for a VLClient call.
type Preparer struct {
	cfg Config
}

// New creates a Preparer with cfg. A zero-valued cfg falls back to DefaultConfig.
func New(cfg Config) *Preparer {
	if cfg.MaxPixels <= 0 || cfg.TargetLongestSide <= 0 || cfg.JPEGQuality <= 0 {
		cfg = DefaultConfig()
	}
	return &Preparer{cfg: cfg}
}

// Prepared is the result of preparing an image for upload.
type Prepared struct {
	// DataURL is a "data:<mime>;base64,<data>" string.
	DataURL string
	// MIME is the encoded image's MIME type (always image/jpeg once resized;
	// the original MIME is preserved for images under MaxPixels).
	MIME string
}

// Prepare decodes raw image bytes, downsamples if oversized, and returns a
// base64 data URL suitable for a VLClient chat-completion request.
func (p *Preparer) Prepare(raw []byte, sourceMIME string) (*Prepared, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeExtractFailed, fmt.Errorf("decode image: %w", err))
	}

	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()

	if pixels <= p.cfg.MaxPixels {
		mime := sourceMIME
		if mime == "" {
			mime = "image/" + format
		}
		return &Prepared{
			DataURL: dataURL(mime, raw),
			MIME:    mime,
		}, nil
	}

	resized := p.resize(img, bounds)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeExtractFailed, fmt.Errorf("encode resized image: %w", err))
	}

	return &Prepared{
		DataURL: dataURL("image/jpeg", buf.Bytes()),
		MIME:    "image/jpeg",
	}, nil
}

func (p *Preparer) resize(img image.Image, bounds image.Rectangle) image.Image {
	w, h := bounds.Dx(), bounds.Dy()

	var newW, newH int
	if w >= h {
		newW = p.cfg.TargetLongestSide
		newH = h * newW / w
	} else {
		newH = p.cfg.TargetLongestSide
		newW = w * newH / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func dataURL(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
