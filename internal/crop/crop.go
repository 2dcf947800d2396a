// Package crop normalizes a detected face box (padding, passport-style aspect
// ratio) and writes the cropped face into the database directory.
package crop

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	// Extra decoders so unusual inputs still crop; encoders stay png/jpeg.
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Region is a face box in source-image pixels. Fractional values appear after
// aspect correction and are truncated only when cropping.
type Region struct {
	Top, Right, Bottom, Left float64
}

// FromLoc builds a Region from a [top, right, bottom, left] location.
func FromLoc(top, right, bottom, left int) Region {
	return Region{Top: float64(top), Right: float64(right), Bottom: float64(bottom), Left: float64(left)}
}

func (r Region) Width() float64  { return r.Right - r.Left }
func (r Region) Height() float64 { return r.Bottom - r.Top }

// Rect truncates the region to integer pixel coordinates.
func (r Region) Rect() image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
}

// Pad grows the region by p pixels on every side, clipped to a w x h image.
func Pad(r Region, p, w, h float64) Region {
	return Region{
		Top:    max(0, r.Top-p),
		Right:  min(w, r.Right+p),
		Bottom: min(h, r.Bottom+p),
		Left:   max(0, r.Left-p),
	}
}

// FitAspect grows the shorter dimension symmetrically until width/height equals
// ratio, then clips to the image. It never shrinks the region.
func FitAspect(r Region, ratio, w, h float64) Region {
	width, height := r.Width(), r.Height()
	if ratio <= 0 || width <= 0 || height <= 0 {
		return r
	}

	if width/height > ratio {
		// Too wide, make it taller
		delta := (width/ratio - height) / 2
		r.Top = max(0, r.Top-delta)
		r.Bottom = min(h, r.Bottom+delta)
	} else {
		// Too tall, make it wider
		delta := (height*ratio - width) / 2
		r.Left = max(0, r.Left-delta)
		r.Right = min(w, r.Right+delta)
	}
	return r
}

// Options controls Normalize.
type Options struct {
	Padding     int
	AspectRatio float64 // width / height; 0 disables the correction
}

// Normalize applies padding and then (optionally) aspect correction to the
// [top, right, bottom, left] box of a face found in img.
func Normalize(img image.Image, top, right, bottom, left int, opts Options) image.Rectangle {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	r := Pad(FromLoc(top, right, bottom, left), float64(opts.Padding), w, h)
	if opts.AspectRatio > 0 {
		r = FitAspect(r, opts.AspectRatio, w, h)
	}
	// Face boxes are relative to the image origin
	return r.Rect().Add(b.Min).Intersect(b)
}

// Crop copies the rect out of img into a fresh RGBA image anchored at (0,0).
func Crop(img image.Image, rect image.Rectangle) (*image.RGBA, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop region")
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}

// Decode parses an encoded image. Any failure here is a decode error for the
// ingestion policy.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Save encodes img according to the extension of path and replaces any
// existing file atomically.
func Save(path string, img image.Image) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".crop-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // No-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
