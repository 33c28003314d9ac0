package rfb

import (
	"encoding/binary"
	"fmt"
	"image"
)

// PixelFormatColor represents a color using the wire format specified by PixelFormat.
type PixelFormatColor struct {
	Pixel       uint32
	PixelFormat PixelFormat
}

func (c PixelFormatColor) RGBA() (r, g, b, a uint32) {
	// Extract components
	r = (c.Pixel >> c.PixelFormat.RedShift) & uint32(c.PixelFormat.RedMax)
	g = (c.Pixel >> c.PixelFormat.GreenShift) & uint32(c.PixelFormat.GreenMax)
	b = (c.Pixel >> c.PixelFormat.BlueShift) & uint32(c.PixelFormat.BlueMax)

	// Scale to 0xffff
	r = (r * 0xffff) / uint32(c.PixelFormat.RedMax)
	g = (g * 0xffff) / uint32(c.PixelFormat.GreenMax)
	b = (b * 0xffff) / uint32(c.PixelFormat.BlueMax)
	a = 0xffff

	return
}

func byteOrderFor(pf PixelFormat) binary.ByteOrder {
	if pf.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeRawRect converts a Raw-encoded rectangle's wire-format pixel bytes
// directly into the sub-rectangle (x, y, x+w, y+h) of dst, respecting dst's
// stride. A BackBuffer update rectangle almost never covers the whole
// framebuffer, so this addresses dst via image.RGBA.PixOffset/stride instead
// of requiring src and dst bounds to match exactly.
func DecodeRawRect(dst *image.RGBA, x, y, w, h int, pf PixelFormat, raw []byte) error {
	bytesPerPixel := pf.BytesPerPixel()
	if bytesPerPixel != 1 && bytesPerPixel != 2 && bytesPerPixel != 4 {
		return fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}
	if want := bytesPerPixel * w * h; len(raw) != want {
		return fmt.Errorf("raw rectangle payload is %d bytes, want %d", len(raw), want)
	}
	if w == 0 || h == 0 {
		return nil
	}

	bo := byteOrderFor(pf)
	redMax, greenMax, blueMax := uint32(pf.RedMax), uint32(pf.GreenMax), uint32(pf.BlueMax)
	srcIdx := 0
	for row := 0; row < h; row++ {
		dstOff := dst.PixOffset(x, y+row)
		for col := 0; col < w; col++ {
			var pixel uint32
			switch bytesPerPixel {
			case 1:
				pixel = uint32(raw[srcIdx])
			case 2:
				pixel = uint32(bo.Uint16(raw[srcIdx:]))
			case 4:
				pixel = bo.Uint32(raw[srcIdx:])
			}

			r := (pixel >> pf.RedShift) & redMax
			g := (pixel >> pf.GreenShift) & greenMax
			b := (pixel >> pf.BlueShift) & blueMax

			dst.Pix[dstOff] = uint8((r * 0xff) / redMax)
			dst.Pix[dstOff+1] = uint8((g * 0xff) / greenMax)
			dst.Pix[dstOff+2] = uint8((b * 0xff) / blueMax)
			dst.Pix[dstOff+3] = 0xff

			srcIdx += bytesPerPixel
			dstOff += 4
		}
	}
	return nil
}
