// Package imaging converts transport-encoded still frames into raw pixel
// buffers. Payloads arrive either as data-URI strings ("data:image/...;base64,")
// or as bare base64, and decode to an 8-bit RGB buffer.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
)

// ErrDecode is returned when a payload is not validly encoded or decodes
// to an unreadable image.
var ErrDecode = errors.New("invalid image payload")

// Frame is a decoded pixel buffer: Height x Width x 3 channels, 8 bits
// per channel, row-major RGB.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// Decode turns a transport-encoded payload into a Frame. A data-URI
// header is stripped when present.
func Decode(payload string) (*Frame, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	if strings.HasPrefix(payload, "data:") {
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, fmt.Errorf("%w: data URI without payload", ErrDecode)
		}
		payload = payload[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return DecodeBytes(raw)
}

// DecodeBytes decodes raw image bytes (JPEG or PNG) into a Frame.
func DecodeBytes(raw []byte) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}

	frame := &Frame{
		Width:  w,
		Height: h,
		Pix:    make([]uint8, w*h*3),
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			frame.Pix[i] = uint8(r >> 8)
			frame.Pix[i+1] = uint8(g >> 8)
			frame.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}

	return frame, nil
}

// At returns the RGB values at the given pixel coordinate.
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// EncodeJPEG re-encodes the frame as JPEG. The dlib capability consumes
// encoded bytes, not raw buffers.
func (f *Frame) EncodeJPEG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src := (y*f.Width + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = f.Pix[src]
			img.Pix[dst+1] = f.Pix[src+1]
			img.Pix[dst+2] = f.Pix[src+2]
			img.Pix[dst+3] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
