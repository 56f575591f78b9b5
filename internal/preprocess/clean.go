package preprocess

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// cleanImage writes a binarized copy of the page image next to it and
// returns the new path. The page is converted to grayscale, its histogram is
// stretched between the 1st and 99th percentiles, then thresholded with
// Otsu's method.
func cleanImage(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	src, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	gray := binarize(stretch(toGray(src)))

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".clean.png"
	w, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if err := png.Encode(w, gray); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("encode %s: %w", out, err)
	}
	return out, w.Close()
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func histogram(img *image.Gray) [256]int {
	var h [256]int
	for _, v := range img.Pix {
		h[v]++
	}
	return h
}

// stretch maps the 1st..99th percentile range onto 0..255 in place.
func stretch(img *image.Gray) *image.Gray {
	h := histogram(img)
	total := len(img.Pix)
	if total == 0 {
		return img
	}
	lo, hi := percentile(h, total, 0.01), percentile(h, total, 0.99)
	if hi <= lo {
		return img
	}
	var lut [256]uint8
	for i := range lut {
		switch {
		case i <= lo:
			lut[i] = 0
		case i >= hi:
			lut[i] = 255
		default:
			lut[i] = uint8((i - lo) * 255 / (hi - lo))
		}
	}
	for i, v := range img.Pix {
		img.Pix[i] = lut[v]
	}
	return img
}

func percentile(h [256]int, total int, q float64) int {
	want := int(q * float64(total))
	seen := 0
	for v, n := range h {
		seen += n
		if seen > want {
			return v
		}
	}
	return 255
}

// otsu returns the threshold that maximizes between-class variance.
func otsu(h [256]int, total int) int {
	var sum float64
	for v, n := range h {
		sum += float64(v * n)
	}
	var sumB, best float64
	wB, threshold := 0, 127
	for t := 0; t < 256; t++ {
		wB += h[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * h[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best, threshold = between, t
		}
	}
	return threshold
}

// binarize sets pixels above the Otsu threshold to white, the rest to black.
func binarize(img *image.Gray) *image.Gray {
	t := otsu(histogram(img), len(img.Pix))
	for i, v := range img.Pix {
		if int(v) > t {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
	return img
}
