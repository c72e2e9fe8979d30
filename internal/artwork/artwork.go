// Package artwork processes collection artwork and cached episode
// thumbnails into podcast-ready square JPEGs.
package artwork

import (
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	// iTunes recommends 1400x1400 podcast artwork.
	maxDimension = 1400
	jpegQuality  = 85
	maxInputSize = 10 * 1024 * 1024
)

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

func ValidateImageFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExtensions[ext] {
		return errors.Errorf("unsupported image format %q", ext)
	}
	return nil
}

// Process decodes an image, caps it at the maximum dimension, letterboxes it
// to a square on a white background and writes it as JPEG at outputPath.
func Process(r io.Reader, outputPath string) error {
	img, err := imaging.Decode(io.LimitReader(r, maxInputSize+1), imaging.AutoOrientation(true))
	if err != nil {
		return errors.Wrap(err, "decode image")
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	img = letterboxToSquare(img)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Wrap(err, "create artwork dir")
	}
	if err := imaging.Save(img, outputPath, imaging.JPEGQuality(jpegQuality)); err != nil {
		return errors.Wrap(err, "save artwork")
	}
	return nil
}

// letterboxToSquare pads the shorter axis with white so players that demand
// square art render without cropping.
func letterboxToSquare(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == h {
		return img
	}
	side := w
	if h > side {
		side = h
	}
	canvas := imaging.New(side, side, color.White)
	return imaging.PasteCenter(canvas, img)
}
