package review

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfnt/resize"
)

// PreviewWidth is the thumbnail width in terminal cells.
const PreviewWidth = 16

// MaxPreviewPixels caps the declared image size RenderPreview will decode.
// Larger images are still attached, just without a preview.
const MaxPreviewPixels = 24_000_000

// ErrPreviewTooLarge reports an image whose header declares more than MaxPreviewPixels.
var ErrPreviewTooLarge = errors.New("review: image too large to preview")

// RenderPreview decodes an image and draws it as rows of upper half-blocks,
// each cell carrying two vertically stacked pixels.
func RenderPreview(data []byte, width int) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("review: decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPreviewPixels {
		return "", fmt.Errorf("%w: %dx%d", ErrPreviewTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("review: decode image: %w", err)
	}
	if width <= 0 {
		width = PreviewWidth
	}
	thumb := resize.Thumbnail(uint(width), uint(width*2), img, resize.Lanczos3)
	bounds := thumb.Bounds()
	var b strings.Builder
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 2 {
		if y > bounds.Min.Y {
			b.WriteByte('\n')
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			style := lipgloss.NewStyle().Foreground(hexColor(thumb.At(x, y)))
			if y+1 < bounds.Max.Y {
				style = style.Background(hexColor(thumb.At(x, y+1)))
			}
			b.WriteString(style.Render("▀"))
		}
	}
	return b.String(), nil
}

func hexColor(c color.Color) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}
