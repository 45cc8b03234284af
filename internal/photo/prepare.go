package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Prepare returns data unchanged when it fits within maxBytes and maxPixels on
// both sides. Otherwise the image is downscaled with a Catmull-Rom filter and
// re-encoded as JPEG until it fits.
func Prepare(data []byte, contentType string, maxBytes, maxPixels int) ([]byte, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image header: %w", err)
	}
	if len(data) <= maxBytes && cfg.Width <= maxPixels && cfg.Height <= maxPixels {
		return data, contentType, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	longest := max(cfg.Width, cfg.Height)
	target := min(longest, maxPixels)
	quality := 85

	for range 8 {
		out, err := encodeScaled(src, target, longest, quality)
		if err != nil {
			return nil, "", err
		}
		if len(out) <= maxBytes {
			return out, "image/jpeg", nil
		}
		if quality > 60 {
			quality -= 10
		} else {
			target = target * 3 / 4
		}
	}
	return nil, "", fmt.Errorf("image could not be reduced below %d bytes", maxBytes)
}

func encodeScaled(src image.Image, target, longest, quality int) ([]byte, error) {
	img := src
	if target < longest {
		b := src.Bounds()
		w := max(1, b.Dx()*target/longest)
		h := max(1, b.Dy()*target/longest)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
