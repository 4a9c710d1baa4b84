package imageprocessor

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"regexp"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ResizeMode says how a source image is fitted into a Size.
type ResizeMode int

const (
	// ModeFit scales to fit within the box, keeping the aspect ratio.
	ModeFit ResizeMode = iota
	// ModeCrop scales to cover the box and crops the overflow around the centre.
	ModeCrop
	// ModeShrink behaves like ModeFit but never enlarges.
	ModeShrink
)

// ImageSize is one named derived variant.
type ImageSize struct {
	Name   string
	Width  int
	Height int
	Mode   ResizeMode
}

var (
	SizeThumbnail = ImageSize{Name: "thumbnail", Width: 150, Height: 150, Mode: ModeCrop}
	SizeSmall     = ImageSize{Name: "small", Width: 400, Height: 400}
	SizeMedium    = ImageSize{Name: "medium", Width: 800, Height: 800}
	SizeLarge     = ImageSize{Name: "large", Width: 1600, Height: 1600, Mode: ModeShrink}
)

var geometryPattern = regexp.MustCompile(`^(\d+)x(\d+)([#>]?)$`)

// ParseSize parses a geometry string such as "150x150#" into an ImageSize.
func ParseSize(name, geometry string) (ImageSize, error) {
	m := geometryPattern.FindStringSubmatch(geometry)
	if m == nil {
		return ImageSize{}, fmt.Errorf("invalid geometry %q for style %q", geometry, name)
	}

	width, _ := strconv.Atoi(m[1])
	height, _ := strconv.Atoi(m[2])
	if width == 0 || height == 0 {
		return ImageSize{}, fmt.Errorf("geometry %q for style %q has a zero dimension", geometry, name)
	}

	size := ImageSize{Name: name, Width: width, Height: height}
	switch m[3] {
	case "#":
		size.Mode = ModeCrop
	case ">":
		size.Mode = ModeShrink
	}
	return size, nil
}

// Geometry renders the size back into its string form.
func (s ImageSize) Geometry() string {
	suffix := ""
	switch s.Mode {
	case ModeCrop:
		suffix = "#"
	case ModeShrink:
		suffix = ">"
	}
	return fmt.Sprintf("%dx%d%s", s.Width, s.Height, suffix)
}

// Processor handles image processing operations
type Processor struct {
	quality int // JPEG quality (1-100)
}

// NewProcessor creates a new image processor
func NewProcessor(quality int) *Processor {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Processor{
		quality: quality,
	}
}

// Supports reports whether the processor can decode and re-encode contentType.
func (p *Processor) Supports(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif":
		return true
	}
	return false
}

// ProcessImage decodes, resizes and re-encodes an image.
// An empty format keeps the source format.
func (p *Processor) ProcessImage(reader io.Reader, size ImageSize, format string) (io.Reader, error) {
	img, imgFormat, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var resized image.Image
	switch size.Mode {
	case ModeCrop:
		resized = imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos)
	case ModeShrink:
		b := img.Bounds()
		if b.Dx() <= size.Width && b.Dy() <= size.Height {
			resized = img
		} else {
			resized = p.resize(img, size.Width, size.Height)
		}
	default:
		resized = p.resize(img, size.Width, size.Height)
	}

	if format == "" {
		format = imgFormat
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: p.quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	case "png":
		if err := png.Encode(&buf, resized); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	case "gif":
		if err := gif.Encode(&buf, resized, nil); err != nil {
			return nil, fmt.Errorf("failed to encode GIF: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	return &buf, nil
}

// resize resizes an image maintaining aspect ratio
func (p *Processor) resize(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	ratio := float64(width) / float64(height)
	newWidth := maxWidth
	newHeight := maxHeight

	if float64(maxWidth)/float64(maxHeight) > ratio {
		newWidth = int(float64(maxHeight) * ratio)
	} else {
		newHeight = int(float64(maxWidth) / ratio)
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst
}

// GetImageDimensions returns the dimensions of an image
func GetImageDimensions(reader io.Reader) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
