package imagecompare

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/anthonynsimon/bild/imgio"
)

// TGAEncoder writes uncompressed 24-bit truecolor TGA, top-left origin.
func TGAEncoder() imgio.Encoder {
	return encodeTGA
}

func encodeTGA(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Dx() > 0xffff || b.Dy() > 0xffff {
		return fmt.Errorf("tga: %dx%d exceeds the format limit", b.Dx(), b.Dy())
	}

	hdr := [18]byte{}
	hdr[2] = 2 // uncompressed truecolor
	binary.LittleEndian.PutUint16(hdr[12:], uint16(b.Dx()))
	binary.LittleEndian.PutUint16(hdr[14:], uint16(b.Dy()))
	hdr[16] = 24
	hdr[17] = 0x20 // top-left origin

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	px := [3]byte{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := nrgbaAt(img, x, y)
			px[0], px[1], px[2] = c.B, c.G, c.R
			if _, err := bw.Write(px[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
