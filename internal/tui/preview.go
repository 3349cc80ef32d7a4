package tui

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xdraw "golang.org/x/image/draw"
)

// backdrop is what transparent overlay pixels are shown over.
var backdrop = color.RGBA{R: 0x16, G: 0x16, B: 0x16, A: 0xff}

// previewSize fits a w×h image into cols×rows terminal cells, two pixels
// per cell vertically.
func previewSize(w, h, cols, rows int) (int, int) {
	if w <= 0 || h <= 0 || cols <= 0 || rows <= 0 {
		return 0, 0
	}
	maxW, maxH := cols, rows*2
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	pw := int(float64(w) * scale)
	ph := int(float64(h) * scale)
	if pw < 1 {
		pw = 1
	}
	if ph < 1 {
		ph = 1
	}
	return pw, ph
}

// renderPreview draws the surface with upper half blocks.
func renderPreview(src *image.RGBA, cols, rows int) string {
	if src == nil {
		return ""
	}
	b := src.Bounds()
	pw, ph := previewSize(b.Dx(), b.Dy(), cols, rows)
	if pw == 0 {
		return ""
	}
	small := image.NewRGBA(image.Rect(0, 0, pw, ph))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), src, b, xdraw.Src, nil)

	lines := make([]string, 0, (ph+1)/2)
	for y := 0; y < ph; y += 2 {
		var line strings.Builder
		for x := 0; x < pw; x++ {
			top := flatten(small.RGBAAt(x, y))
			bottom := backdrop
			if y+1 < ph {
				bottom = flatten(small.RGBAAt(x, y+1))
			}
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(hexColor(top))).
				Background(lipgloss.Color(hexColor(bottom)))
			line.WriteString(style.Render("▀"))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// flatten composites a premultiplied pixel over the backdrop.
func flatten(c color.RGBA) color.RGBA {
	inv := 255 - uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) + uint32(backdrop.R)*inv/255),
		G: uint8(uint32(c.G) + uint32(backdrop.G)*inv/255),
		B: uint8(uint32(c.B) + uint32(backdrop.B)*inv/255),
		A: 0xff,
	}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
