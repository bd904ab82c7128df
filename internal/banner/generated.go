package banner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"log/slog"
	"math"
	"sync"

	"github.com/ashureev/aerochat/internal/session"
)

const (
	genWidth  = 320
	genHeight = 180
	genFrames = 16
	genDelay  = 6 // hundredths of a second
)

var genPalette = color.Palette{
	color.RGBA{0x8e, 0xc9, 0xf0, 0xff}, // sky
	color.RGBA{0xd6, 0xec, 0xfa, 0xff}, // haze
	color.RGBA{0x3b, 0x4a, 0x2f, 0xff}, // fuselage
	color.RGBA{0x1d, 0x1d, 0x1d, 0xff}, // rotor
	color.RGBA{0x6f, 0x8f, 0x5a, 0xff}, // ground
}

const (
	idxSky = iota
	idxHaze
	idxBody
	idxRotor
	idxGround
)

// Generated renders a looping helicopter animation once and serves it from
// memory.
type Generated struct {
	Caption string

	once sync.Once
	data []byte
}

// NewGenerated creates a generated provider.
func NewGenerated(caption string) *Generated {
	return &Generated{Caption: caption}
}

// Banner implements Provider.
func (g *Generated) Banner(context.Context, *session.Session) (*Image, error) {
	g.once.Do(func() {
		data, err := renderRotor()
		if err != nil {
			slog.Error("Failed to render generated banner", "error", err)
			return
		}
		g.data = data
	})
	if len(g.data) == 0 {
		return &Image{Caption: g.Caption, Source: ModeGenerated}, nil
	}
	return &Image{Data: g.data, ContentType: "image/gif", Caption: g.Caption, Source: ModeGenerated}, nil
}

func renderRotor() ([]byte, error) {
	anim := &gif.GIF{LoopCount: 0}
	bounds := image.Rect(0, 0, genWidth, genHeight)

	for f := 0; f < genFrames; f++ {
		img := image.NewPaletted(bounds, genPalette)
		drawScene(img, f)
		anim.Image = append(anim.Image, img)
		anim.Delay = append(anim.Delay, genDelay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawScene(img *image.Paletted, frame int) {
	horizon := genHeight * 4 / 5
	for y := 0; y < genHeight; y++ {
		idx := uint8(idxSky)
		switch {
		case y >= horizon:
			idx = idxGround
		case y > horizon-12:
			idx = idxHaze
		}
		for x := 0; x < genWidth; x++ {
			img.SetColorIndex(x, y, idx)
		}
	}

	// Gentle bob so the airframe looks like it is hovering.
	phase := 2 * math.Pi * float64(frame) / genFrames
	cx := genWidth / 2
	cy := genHeight/2 + int(math.Round(3*math.Sin(phase)))

	fillEllipse(img, cx, cy, 34, 13, idxBody)
	drawLine(img, cx+20, cy-2, cx+92, cy-6, 3, idxBody)
	fillEllipse(img, cx+92, cy-8, 4, 10, idxBody)
	drawLine(img, cx-18, cy+18, cx+22, cy+18, 1, idxRotor)
	drawLine(img, cx-8, cy+12, cx-8, cy+18, 1, idxRotor)
	drawLine(img, cx+12, cy+12, cx+12, cy+18, 1, idxRotor)
	drawLine(img, cx, cy-13, cx, cy-19, 1, idxRotor)

	// Main rotor seen edge-on: blade length follows cos of the rotor angle.
	angle := 2 * math.Pi * float64(frame) / genFrames * 2
	span := int(math.Round(96 * math.Abs(math.Cos(angle))))
	if span < 8 {
		span = 8
	}
	drawLine(img, cx-span, cy-20, cx+span, cy-20, 1, idxRotor)

	tail := 2 * math.Pi * float64(frame) / genFrames * 3
	dx := int(math.Round(9 * math.Cos(tail)))
	dy := int(math.Round(9 * math.Sin(tail)))
	drawLine(img, cx+92-dx, cy-8-dy, cx+92+dx, cy-8+dy, 1, idxRotor)
}

func fillEllipse(img *image.Paletted, cx, cy, rx, ry int, idx uint8) {
	for y := -ry; y <= ry; y++ {
		for x := -rx; x <= rx; x++ {
			if float64(x*x)/float64(rx*rx)+float64(y*y)/float64(ry*ry) <= 1 {
				setPixel(img, cx+x, cy+y, idx)
			}
		}
	}
}

func drawLine(img *image.Paletted, x0, y0, x1, y1, width int, idx uint8) {
	steps := max(abs(x1-x0), abs(y1-y0))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		for w := 0; w < width; w++ {
			setPixel(img, x, y+w-width/2, idx)
		}
	}
}

func setPixel(img *image.Paletted, x, y int, idx uint8) {
	if image.Pt(x, y).In(img.Rect) {
		img.SetColorIndex(x, y, idx)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
