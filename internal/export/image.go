package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/verte-zerg/gazemap/internal/model"
)

// ErrNoSurface is returned when there is no rendered surface to capture.
var ErrNoSurface = errors.New("no rendered surface")

const (
	barHeight    = 40
	labelX       = 10
	labelBaseGap = 15
	labelSize    = 14
)

var (
	barColor   = color.RGBA{A: 179}
	labelColor = image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255})

	faceOnce sync.Once
	face     font.Face
)

// labelFace returns Go Regular at 14px, or the built-in bitmap face if the
// embedded font cannot be loaded.
func labelFace() font.Face {
	faceOnce.Do(func() {
		face = basicfont.Face7x13
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return
		}
		ff, err := opentype.NewFace(f, &opentype.FaceOptions{Size: labelSize, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return
		}
		face = ff
	})
	return face
}

// Label returns the information bar text for page at t.
func Label(page string, t time.Time, loc Locale) string {
	return fmt.Sprintf("Page: %s - %s", page, loc.DateTime(t))
}

// Annotate copies surface and draws the bottom information bar onto it.
func Annotate(surface *image.RGBA, text string) *image.RGBA {
	b := surface.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, surface, b.Min, draw.Src)

	bar := image.Rect(b.Min.X, b.Max.Y-barHeight, b.Max.X, b.Max.Y).Intersect(b)
	draw.Draw(out, bar, image.NewUniform(barColor), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  out,
		Src:  labelColor,
		Face: labelFace(),
		Dot:  fixed.P(b.Min.X+labelX, b.Max.Y-labelBaseGap),
	}
	d.DrawString(text)
	return out
}

// Image encodes the annotated surface as a PNG artifact.
func Image(surface *image.RGBA, page string, now time.Time, loc Locale) (model.Artifact, error) {
	if surface == nil || surface.Bounds().Empty() {
		return model.Artifact{}, ErrNoSurface
	}
	img := Annotate(surface, Label(page, now, loc))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to encode png: %w", err)
	}
	return model.Artifact{
		Kind:     model.ArtifactImage,
		Page:     page,
		Filename: ImageName(page, now),
		Bytes:    buf.Bytes(),
	}, nil
}
