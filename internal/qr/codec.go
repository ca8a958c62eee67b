// Package qr encodes verification tokens as QR images, decodes them from
// camera frames or uploads, and drives the pharmacist verification flow.
package qr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	goqrcode "github.com/skip2/go-qrcode"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/config"
)

// DefaultRenderURL is the public QR rendering endpoint
const DefaultRenderURL = "https://api.qrserver.com/v1/create-qr-code/"

// DefaultImageSize is the rendered edge length in pixels
const DefaultImageSize = 100

// Codec renders and reads verification QR codes
type Codec struct {
	renderURL string
	size      int
}

// NewCodec creates a codec from the qr configuration section
func NewCodec(cfg config.QRConfig) *Codec {
	c := &Codec{renderURL: cfg.RenderURL, size: cfg.ImageSize}
	if c.renderURL == "" {
		c.renderURL = DefaultRenderURL
	}
	if c.size <= 0 {
		c.size = DefaultImageSize
	}
	return c
}

// Size returns the configured edge length
func (c *Codec) Size() int {
	return c.size
}

// ImageURL returns the remote rendering URL for token.
// A non-positive size uses the configured size.
func (c *Codec) ImageURL(token string, size int) string {
	if size <= 0 {
		size = c.size
	}
	sep := "?"
	if strings.Contains(c.renderURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssize=%dx%d&data=%s", c.renderURL, sep, size, size, url.QueryEscape(token))
}

// RenderPNG renders token locally at the configured size
func (c *Codec) RenderPNG(token string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	png, err := goqrcode.Encode(token, goqrcode.Medium, c.size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}

// DecodeImage reads a QR code from img. ok is false when no code is found.
func (c *Codec) DecodeImage(img image.Image) (string, bool) {
	if img == nil {
		return "", false
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", false
	}

	text := strings.TrimSpace(result.GetText())
	return text, text != ""
}

// DecodeBytes decodes an encoded image (PNG, JPEG) and reads its QR code
func (c *Codec) DecodeBytes(data []byte) (string, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	return c.DecodeImage(img)
}
