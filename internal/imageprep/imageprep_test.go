package imageprep

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepare_SmallImagePassesThroughUnresized(t *testing.T) {
	raw := encodePNG(t, 10, 10)
	p := New(DefaultConfig())

	out, err := p.Prepare(raw, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.MIME)
	assert.True(t, strings.HasPrefix(out.DataURL, "data:image/png;base64,"))
}

func TestPrepare_OversizedImageIsDownsampledToJPEG(t *testing.T) {
	cfg := Config{MaxPixels: 100, TargetLongestSide: 8, JPEGQuality: 80}
	raw := encodePNG(t, 50, 20)
	p := New(cfg)

	out, err := p.Prepare(raw, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MIME)
	assert.True(t, strings.HasPrefix(out.DataURL, "data:image/jpeg;base64,"))
}

func TestPrepare_InvalidImageReturnsError(t *testing.T) {
	p := New(DefaultConfig())
	_, err := p.Prepare([]byte("not an image"), "image/png")
	assert.Error(t, err)
}

func TestNew_FallsBackToDefaultsOnZeroConfig(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, DefaultConfig(), p.cfg)
}
