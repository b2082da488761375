// Package qmd serializes assembled documents to Quarto markdown files.
package qmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"guideline-translator/internal/document"
	"guideline-translator/internal/logger"
	"guideline-translator/internal/types"
)

// ImagesDirName is the directory under the output root that holds the
// exported figure and table images. Image embeds in the QMD body point here.
const ImagesDirName = "images"

// frontmatter mirrors types.Frontmatter with the YAML keys Quarto expects.
// Fields are passed through verbatim.
type frontmatter struct {
	Title           string   `yaml:"title"`
	Subtitle        string   `yaml:"subtitle,omitempty"`
	DocNumber       string   `yaml:"docNumber,omitempty"`
	Date            string   `yaml:"date,omitempty"`
	PublicationDate string   `yaml:"publicationDate,omitempty"`
	Keywords        []string `yaml:"keywords,omitempty"`
	Lang            string   `yaml:"lang,omitempty"`
}

// Writer persists rendered documents under a fixed output directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a Writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// OutputDir returns the directory documents are written into.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// WriteDocument renders doc and writes it to <outputDir>/<baseName>_<lang>.qmd.
// It returns the path of the written file.
func (w *Writer) WriteDocument(doc *document.Document, lang, baseName string) (string, error) {
	content, err := Render(doc, lang)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create output directory", err)
	}

	path := filepath.Join(w.outputDir, fmt.Sprintf("%s_%s.qmd", baseName, lang))
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to write document", err)
	}

	logger.Info("wrote document",
		logger.String("path", path),
		logger.Int("blocks", len(doc.Blocks)),
		logger.Int("bytes", len(content)))

	return path, nil
}

// Render produces the QMD serialization of doc: a YAML frontmatter header
// followed by the body blocks. The source and translated renditions use the
// identical format and differ only in text, caption labels and the lang
// field.
func Render(doc *document.Document, lang string) ([]byte, error) {
	fm := frontmatter{
		Title:           doc.Frontmatter.Title,
		Subtitle:        doc.Frontmatter.Subtitle,
		DocNumber:       doc.Frontmatter.DocNumber,
		Date:            doc.Frontmatter.Date,
		PublicationDate: doc.Frontmatter.PublicationDate,
		Keywords:        doc.Frontmatter.Keywords,
		Lang:            lang,
	}

	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to marshal frontmatter", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n")

	for _, blk := range doc.Blocks {
		switch blk.Kind {
		case document.KindHeading:
			b.WriteString("\n")
			b.WriteString(strings.Repeat("#", headingDepth(blk.Level)))
			b.WriteString(" ")
			b.WriteString(blk.Text)
			b.WriteString("\n")
		case document.KindParagraph:
			b.WriteString("\n")
			if blk.Fallback {
				b.WriteString("<!-- untranslated -->\n")
			}
			b.WriteString(blk.Text)
			b.WriteString("\n")
		case document.KindFigureRef:
			b.WriteString("\n")
			fmt.Fprintf(&b, "![%s %d](%s/figure_%d.png){#fig-%d}\n",
				figureLabel(lang), blk.Ordinal, ImagesDirName, blk.Ordinal, blk.Ordinal)
		case document.KindTableRef:
			b.WriteString("\n")
			fmt.Fprintf(&b, "![%s %d](%s/table_%d.png){#tbl-%d}\n",
				tableLabel(lang), blk.Ordinal, ImagesDirName, blk.Ordinal, blk.Ordinal)
		case document.KindPageBreak:
			if blk.Page > 1 {
				b.WriteString("\n{{< pagebreak >}}\n")
			}
		case document.KindReferenceEntry:
			b.WriteString("\n")
			fmt.Fprintf(&b, "(%d) %s\n", blk.Index, blk.Text)
		}
	}

	return []byte(b.String()), nil
}

// figureLabel returns the image caption word for the document language.
func figureLabel(lang string) string {
	if strings.HasPrefix(lang, "zh") {
		return "图"
	}
	return "Figure"
}

func tableLabel(lang string) string {
	if strings.HasPrefix(lang, "zh") {
		return "表格"
	}
	return "Table"
}

// headingDepth clamps a heading level to the markdown range.
func headingDepth(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}
