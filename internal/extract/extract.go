// Package extract wraps the PDF libraries behind the page-extraction
// interface the pipeline consumes: per-page plain text plus detected table
// regions with bounding boxes.
package extract

import (
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"guideline-translator/internal/logger"
	"guideline-translator/internal/types"
)

// Page is one ordered unit of input: extracted plain text plus the table
// regions detected on it. Immutable once produced.
type Page struct {
	Index        int // 1-based
	RawText      string
	Width        float64 // in PDF points
	Height       float64
	TableRegions []TableRegion
}

// TableRegion is a detected tabular area on a page. Coordinates are in PDF
// points with the origin at the bottom-left corner.
type TableRegion struct {
	Page    int
	BBox    [4]float64 // x0, y0, x1, y1
	Ordinal int        // position among regions on the page, 1-based
}

// Extractor reads a PDF file and yields pages. It fails with an extraction
// error when the document carries no selectable text.
type Extractor struct {
	path     string
	detector *tableDetector
}

// NewExtractor validates the input file and returns an Extractor for it.
func NewExtractor(path string) (*Extractor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppError(types.ErrInvalidInput, "input file does not exist", err)
		}
		return nil, types.NewAppError(types.ErrInvalidInput, "cannot access input file", err)
	}
	if info.IsDir() {
		return nil, types.NewAppError(types.ErrInvalidInput, "input path is a directory", nil)
	}

	// Structural validation before any extraction work.
	if err := api.ValidateFile(path, nil); err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "input is not a valid PDF", err)
	}

	return &Extractor{path: path, detector: newTableDetector()}, nil
}

// Path returns the input file path.
func (e *Extractor) Path() string { return e.path }

// PageCount returns the number of pages in the document.
func (e *Extractor) PageCount() (int, error) {
	f, r, err := pdf.Open(e.path)
	if err != nil {
		return 0, types.NewAppError(types.ErrExtraction, "cannot open PDF", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// HasSelectableText probes the first few pages for extractable text. Scanned
// documents without a text layer fail this check.
func (e *Extractor) HasSelectableText() (bool, error) {
	f, r, err := pdf.Open(e.path)
	if err != nil {
		return false, types.NewAppError(types.ErrExtraction, "cannot open PDF", err)
	}
	defer f.Close()

	maxPagesToCheck := 3
	if r.NumPage() < maxPagesToCheck {
		maxPagesToCheck = r.NumPage()
	}

	totalTextLength := 0
	for pageNum := 1; pageNum <= maxPagesToCheck; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, c := range content {
			if !unicode.IsSpace(c) {
				totalTextLength++
			}
		}
		if totalTextLength > 50 {
			return true, nil
		}
	}
	return totalTextLength > 0, nil
}

// ExtractPages extracts every page's text and detects its table regions.
func (e *Extractor) ExtractPages() ([]Page, error) {
	ok, err := e.HasSelectableText()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewAppError(types.ErrExtraction,
			"PDF contains no selectable text; scanned documents are not supported", nil)
	}

	f, r, err := pdf.Open(e.path)
	if err != nil {
		return nil, types.NewAppError(types.ErrExtraction, "cannot open PDF", err)
	}
	defer f.Close()

	dims, err := pageDimensions(e.path)
	if err != nil {
		logger.Warn("cannot read page dimensions, using US letter", logger.Err(err))
	}

	totalPages := r.NumPage()
	pages := make([]Page, 0, totalPages)
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, Page{Index: pageNum})
			continue
		}

		p := Page{
			Index:  pageNum,
			Width:  612, // US letter fallback
			Height: 792,
		}
		if pageNum-1 < len(dims) {
			p.Width = dims[pageNum-1][0]
			p.Height = dims[pageNum-1][1]
		}

		rows := e.positionedRows(page, pageNum)
		if rows != nil {
			p.TableRegions = e.detector.detect(rows, pageNum)
			p.RawText = cleanExtractedText(reconstructText(rows, p.TableRegions))
		} else {
			// Fall back to unstructured text when positions are unusable.
			text, err := page.GetPlainText(nil)
			if err != nil {
				logger.Warn("text extraction failed for page",
					logger.Int("page", pageNum), logger.Err(err))
				text = ""
			}
			p.RawText = cleanExtractedText(text)
		}

		pages = append(pages, p)
	}

	logger.Info("pages extracted",
		logger.Int("pages", len(pages)),
		logger.String("file", e.path))
	return pages, nil
}

// positionedRows converts a page's row-grouped text into the detector's
// fragment representation, top-to-bottom. Returns nil when the library
// cannot produce positioned rows for the page.
func (e *Extractor) positionedRows(page pdf.Page, pageNum int) []textRow {
	rows, err := page.GetTextByRow()
	if err != nil {
		logger.Debug("row extraction failed",
			logger.Int("page", pageNum), logger.Err(err))
		return nil
	}

	trs := make([]textRow, 0, len(rows))
	for _, row := range rows {
		if len(row.Content) == 0 {
			continue
		}
		tr := textRow{y: row.Content[0].Y}
		for _, t := range row.Content {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			tr.frags = append(tr.frags, fragment{x: t.X, fontSize: t.FontSize, text: t.S})
		}
		if len(tr.frags) > 0 {
			trs = append(trs, tr)
		}
	}

	// Top-to-bottom reading order; PDF Y grows upward.
	sort.SliceStable(trs, func(i, j int) bool { return trs[i].y > trs[j].y })
	if len(trs) == 0 {
		return nil
	}
	return trs
}

// TablePlaceholder is the line standing in for a detected table region in
// reconstructed page text. The assembler resolves each occurrence to the
// next unconsumed table of the page.
const TablePlaceholder = "[[TABLE]]"

// reconstructText joins rows into page text, inserting a blank line where the
// vertical gap between rows exceeds normal line spacing. Blank lines carry
// the paragraph boundaries the downstream heuristics depend on. Rows falling
// inside a detected table region collapse into one placeholder line per
// region.
func reconstructText(rows []textRow, regions []TableRegion) string {
	emitted := make([]bool, len(regions))

	var lines []string
	var prevY float64
	var prevSize float64
	first := true

rowLoop:
	for _, row := range rows {
		for ri, region := range regions {
			if row.y >= region.BBox[1] && row.y <= region.BBox[3] {
				if !emitted[ri] {
					emitted[ri] = true
					if len(lines) > 0 && lines[len(lines)-1] != "" {
						lines = append(lines, "")
					}
					lines = append(lines, TablePlaceholder, "")
				}
				continue rowLoop
			}
		}

		if !first {
			lineHeight := prevSize * 1.2
			if lineHeight <= 0 {
				lineHeight = 12.0
			}
			if prevY-row.y > 2*lineHeight && len(lines) > 0 && lines[len(lines)-1] != "" {
				lines = append(lines, "")
			}
		}
		parts := make([]string, 0, len(row.frags))
		for _, f := range row.frags {
			parts = append(parts, strings.TrimSpace(f.text))
		}
		lines = append(lines, strings.Join(parts, " "))
		prevY = row.y
		prevSize = row.frags[0].fontSize
		first = false
	}
	return strings.Join(lines, "\n")
}

// pageDimensions returns [width, height] per page via pdfcpu.
func pageDimensions(path string) ([][2]float64, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, err
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, err
	}
	out := make([][2]float64, len(dims))
	for i, d := range dims {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out, nil
}

// cleanExtractedText drops control characters that some PDF producers leave
// in the text stream and normalizes line endings.
func cleanExtractedText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r < 32 && r != '\n' && r != '\t' {
			continue
		}
		if r >= 0x7F && r <= 0x9F {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
