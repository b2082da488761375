// Package raster renders page regions and recovers embedded images from the
// input PDF. Page rendering goes through MuPDF; embedded image extraction
// goes through pdfcpu.
package raster

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/draw"

	"guideline-translator/internal/extract"
	"guideline-translator/internal/logger"
	"guideline-translator/internal/types"
)

// Rasterizer renders pages of one PDF document. Not safe for concurrent use;
// MuPDF documents are single-threaded.
type Rasterizer struct {
	doc  *fitz.Document
	path string
	dpi  float64
}

// New opens the document for rendering at the given resolution.
func New(path string, dpi int) (*Rasterizer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrExtraction, "cannot open PDF for rendering", err)
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &Rasterizer{doc: doc, path: path, dpi: float64(dpi)}, nil
}

// Close releases the underlying document.
func (r *Rasterizer) Close() error {
	return r.doc.Close()
}

// Crop renders the page containing the region and cuts out its bounding box.
// Region coordinates are PDF points with a bottom-left origin; the raster has
// a top-left origin, so the Y axis flips using the page height.
func (r *Rasterizer) Crop(region extract.TableRegion, pageHeight float64) (image.Image, error) {
	rendered, err := r.doc.ImageDPI(region.Page-1, r.dpi)
	if err != nil {
		return nil, types.NewAppError(types.ErrExtraction,
			fmt.Sprintf("cannot render page %d", region.Page), err)
	}

	scale := r.dpi / 72.0
	x0 := int(region.BBox[0] * scale)
	x1 := int(region.BBox[2] * scale)
	// Flip Y: the region's top edge (larger PDF Y) maps to the smaller
	// raster Y.
	y0 := int((pageHeight - region.BBox[3]) * scale)
	y1 := int((pageHeight - region.BBox[1]) * scale)

	bounds := rendered.Bounds()
	rect := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if rect.Empty() {
		return nil, types.NewAppError(types.ErrExtraction,
			fmt.Sprintf("table region on page %d is outside the rendered page", region.Page), nil)
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(out, image.Point{}, rendered, rect, draw.Src, nil)
	return out, nil
}

// Scale resizes an image to the given width, preserving aspect ratio.
// Catmull-Rom keeps thin table rules legible after downscaling.
func Scale(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= width {
		return img
	}
	height := bounds.Dy() * width / bounds.Dx()
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(out, out.Bounds(), img, bounds, draw.Src, nil)
	return out
}

// EmbeddedImage is one image object recovered from the PDF content stream,
// with the page it appeared on and its extraction order on that page.
type EmbeddedImage struct {
	Page     int
	Position int
	Image    image.Image
}

// pdfcpu names extracted files <input>_<pageNr>_<resourceID>.<ext> with the
// page number zero padded, e.g. tg432_03_Im0.png.
var extractedNamePattern = regexp.MustCompile(`_(\d+)_[^_]+\.\w+$`)

// pageFromExtractedName recovers the 1-based page number from a file name
// written by pdfcpu's image extraction.
func pageFromExtractedName(name string) (int, bool) {
	m := extractedNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// ExtractEmbedded pulls every embedded image out of the document. Extraction
// goes through a temporary directory that is removed before returning.
func ExtractEmbedded(path string) ([]EmbeddedImage, error) {
	tmpDir, err := os.MkdirTemp("", "guideline-images-*")
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "cannot create temp directory", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractImagesFile(path, tmpDir, nil, nil); err != nil {
		// Some documents carry no image XObjects at all; treat extraction
		// failure as an empty result rather than aborting the run.
		logger.Warn("embedded image extraction failed", logger.Err(err))
		return nil, nil
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "cannot list extracted images", err)
	}

	var out []EmbeddedImage
	perPage := map[int]int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		page, ok := pageFromExtractedName(name)
		if !ok {
			continue
		}

		f, err := os.Open(filepath.Join(tmpDir, name))
		if err != nil {
			logger.Warn("cannot open extracted image", logger.String("file", name), logger.Err(err))
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			logger.Warn("cannot decode extracted image", logger.String("file", name), logger.Err(err))
			continue
		}

		out = append(out, EmbeddedImage{Page: page, Position: perPage[page], Image: img})
		perPage[page]++
	}

	logger.Info("embedded images extracted", logger.Int("count", len(out)))
	return out, nil
}

// WritePNG encodes an image into the output directory under the given name.
func WritePNG(dir, name string, img image.Image) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.NewAppError(types.ErrInternal, "cannot create image directory", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return types.NewAppError(types.ErrInternal, "cannot create image file", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return types.NewAppError(types.ErrInternal, "cannot encode image", err)
	}
	return nil
}
