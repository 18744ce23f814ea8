package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/script2video/internal/storyboard"
	"github.com/ivlev/script2video/internal/system"
)

var (
	textColor = color.RGBA{A: 255}
	hintColor = color.RGBA{R: 255, A: 255}
	white     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	textTop     = 120
	lineSpacing = 10
	sideMargin  = 80
	hintMargin  = 10
)

// FrameDrawer paints one still frame per scene: wrapped, centered text on
// the scene background, the visual hint in red in the bottom-right corner
// and, on summary scenes, a QR code of QRLink in the bottom-left corner.
type FrameDrawer struct {
	Width, Height int
	FontSize      float64
	QRLink        string

	font *opentype.Font
}

func NewFrameDrawer(width, height int, fontSize float64, qrLink string) (*FrameDrawer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &FrameDrawer{Width: width, Height: height, FontSize: fontSize, QRLink: qrLink, font: f}, nil
}

// Draw renders sc into a pooled frame. Release it with system.PutImage.
func (d *FrameDrawer) Draw(sc storyboard.Scene) (*image.RGBA, error) {
	// opentype faces keep per-face caches, one per call keeps Draw goroutine safe
	face, err := opentype.NewFace(d.font, &opentype.FaceOptions{Size: d.FontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	defer face.Close()

	bounds := image.Rect(0, 0, d.Width, d.Height)
	img := system.GetImage(bounds)

	bg, err := ParseHexColor(sc.BgColor)
	if err != nil {
		bg = white
	}
	draw.Draw(img, bounds, image.NewUniform(bg), image.Point{}, draw.Src)

	lineHeight := face.Metrics().Height.Ceil()
	ascent := face.Metrics().Ascent.Ceil()

	y := textTop
	for _, line := range WrapText(face, sc.Text, d.Width-2*sideMargin) {
		w := font.MeasureString(face, line).Ceil()
		drawString(img, face, line, textColor, (d.Width-w)/2, y+ascent)
		y += lineHeight + lineSpacing
	}

	if sc.VisualHint != "" {
		w := font.MeasureString(face, sc.VisualHint).Ceil()
		drawString(img, face, sc.VisualHint, hintColor, d.Width-w-hintMargin, d.Height-hintMargin-face.Metrics().Descent.Ceil())
	}

	if d.QRLink != "" && sc.Type == storyboard.TypeSummary {
		if err := d.drawQR(img); err != nil {
			system.PutImage(img)
			return nil, err
		}
	}
	return img, nil
}

func (d *FrameDrawer) drawQR(img *image.RGBA) error {
	size := d.Height / 5
	if size < 64 {
		size = 64
	}
	qr, err := qrcode.New(d.QRLink, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("qr code: %w", err)
	}
	code := qr.Image(size)
	at := image.Pt(hintMargin, d.Height-size-hintMargin)
	draw.Draw(img, image.Rectangle{Min: at, Max: at.Add(code.Bounds().Size())}, code, code.Bounds().Min, draw.Src)
	return nil
}

func drawString(img draw.Image, face font.Face, s string, c color.Color, x, y int) {
	dr := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	dr.DrawString(s)
}

// WrapText greedily packs words into lines no wider than maxWidth pixels.
// A single word wider than maxWidth gets its own line.
func WrapText(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	limit := fixed.I(maxWidth)
	var lines []string
	current := words[0]
	for _, w := range words[1:] {
		candidate := current + " " + w
		if font.MeasureString(face, candidate) <= limit {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = w
	}
	return append(lines, current)
}

// ParseHexColor accepts #RGB and #RRGGBB.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
