package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxImageWidth    = 1600
	defaultJPEGQuality      = 85
	defaultCoverJPEGQuality = 90
	defaultMaxPixels        = 100 * 1000 * 1000 // 100 megapixels
)

// ImageOptions configures an ImageOptimizer. Zero values select defaults.
type ImageOptions struct {
	MaxWidth    int
	JPEGQuality int
}

// ImageOptimizer prepares raster images for the web. The output keeps the
// input format so it can be served under the original href.
type ImageOptimizer struct {
	MaxWidth         int
	JPEGQuality      int
	CoverJPEGQuality int
	MaxPixels        int // Total pixel count limit for decode (width * height)
}

// OptimizedImage holds optimized image data and metadata.
// Warning is set (non-empty) when the image was returned as-is because it
// could not be processed. Data is always usable.
type OptimizedImage struct {
	Data         []byte
	Width        int
	Height       int
	Format       string
	OriginalPath string
	Warning      string
}

// NewImageOptimizer creates an image optimizer with defaults.
func NewImageOptimizer(opts ImageOptions) *ImageOptimizer {
	maxWidth := opts.MaxWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxImageWidth
	}

	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = defaultJPEGQuality
	}
	if quality > 100 {
		quality = 100
	}

	return &ImageOptimizer{
		MaxWidth:         maxWidth,
		JPEGQuality:      quality,
		CoverJPEGQuality: defaultCoverJPEGQuality,
		MaxPixels:        defaultMaxPixels,
	}
}

// Optimize downsizes images wider than MaxWidth and re-encodes them in
// their own format. When nothing was resized and re-encoding does not save
// bytes the input is returned unchanged. SVG, animated GIF and undecodable
// input pass through; only the latter two set Warning.
func (o *ImageOptimizer) Optimize(path, mediaType string, input []byte) (OptimizedImage, error) {
	out := OptimizedImage{
		Data:         input,
		Format:       mediaTypeToFormat(mediaType),
		OriginalPath: path,
	}
	if strings.EqualFold(mediaType, "image/svg+xml") {
		out.Format = "svg"
		return out, nil
	}

	cfg, cfgFormat, cfgErr := image.DecodeConfig(bytes.NewReader(input))
	if cfgErr == nil {
		out.Width = cfg.Width
		out.Height = cfg.Height
		if out.Format == "" {
			out.Format = strings.ToLower(cfgFormat)
		}
		pixels := uint64(cfg.Width) * uint64(cfg.Height)
		if o.MaxPixels > 0 && pixels > uint64(o.MaxPixels) {
			out.Warning = fmt.Sprintf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
			return out, nil
		}
	}

	if out.Format == "gif" {
		animated, err := isAnimatedGIF(input)
		if err == nil && animated {
			out.Warning = "animated gif kept as is"
			return out, nil
		}
	}

	src, decodedFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		out.Warning = fmt.Sprintf("image decode failed: %v", err)
		return out, nil
	}
	if out.Format == "" {
		out.Format = strings.ToLower(decodedFormat)
	}

	processed := src
	resized := false
	if o.MaxWidth > 0 && src.Bounds().Dx() > o.MaxWidth {
		processed = imaging.Resize(src, o.MaxWidth, 0, imaging.Lanczos)
		resized = true
	}

	data, err := encodeAs(out.Format, processed, o.JPEGQuality)
	if err != nil {
		return out, err
	}
	if !resized && len(data) >= len(input) {
		return out, nil
	}

	out.Data = data
	out.Width = processed.Bounds().Dx()
	out.Height = processed.Bounds().Dy()
	return out, nil
}

// Thumbnail scales an image to width pixels (keeping the aspect ratio,
// never enlarging) and encodes it as JPEG at the cover quality. EXIF
// orientation is applied.
func (o *ImageOptimizer) Thumbnail(input []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid thumbnail width %d", width)
	}
	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("thumbnail decode failed: %w", err)
	}
	if src.Bounds().Dx() > width {
		src = imaging.Resize(src, width, 0, imaging.Lanczos)
	}

	quality := o.CoverJPEGQuality
	if quality <= 0 {
		quality = defaultCoverJPEGQuality
	}
	// JPEG has no alpha channel
	flat := imaging.New(src.Bounds().Dx(), src.Bounds().Dy(), color.White)
	flat = imaging.Overlay(flat, src, image.Pt(0, 0), 1.0)
	return encodeJPEG(flat, quality)
}

func encodeAs(format string, img image.Image, quality int) ([]byte, error) {
	switch format {
	case "jpeg":
		data, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, fmt.Errorf("jpeg encode failed: %w", err)
		}
		return data, nil
	case "png":
		data, err := encodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("png encode failed: %w", err)
		}
		return data, nil
	case "gif":
		var buf bytes.Buffer
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("gif encode failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
}

func mediaTypeToFormat(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	default:
		return ""
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAnimatedGIF(data []byte) (bool, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	return len(g.Image) > 1, nil
}
