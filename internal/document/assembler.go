package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"guideline-translator/internal/assets"
	"guideline-translator/internal/extract"
	"guideline-translator/internal/headings"
	"guideline-translator/internal/logger"
	"guideline-translator/internal/types"
)

// PageInput is one page ready for assembly: its normalized text split into
// lines, with a classification result per line.
type PageInput struct {
	Index    int
	Lines    []string
	Headings []headings.Result
}

// Input carries everything the assembler consumes. Assets must be finalized
// before assembly so every ordinal is settled.
type Input struct {
	Pages       []PageInput
	Assets      *assets.Registry
	Frontmatter types.Frontmatter
}

// refEntryPattern matches the leading numeric marker of a literature entry.
var refEntryPattern = regexp.MustCompile(`^\((\d+)\)\s*(.*)$`)

// Assembler builds the canonical document in a single ordered walk over the
// pages. It is the synchronization point of the pipeline: everything upstream
// must have completed.
type Assembler struct {
	warnings []string

	// literature and lastRefNum span pages: the reference list is a trailing
	// section of the document and routinely continues past page breaks.
	literature bool
	lastRefNum int
}

// NewAssembler returns an Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Warnings returns the structural warnings collected during the last
// Assemble call.
func (a *Assembler) Warnings() []string {
	return a.warnings
}

// Assemble produces the canonical document. It fails with a structural
// integrity error when a table placeholder cannot be resolved to a kept
// asset; every other irregularity degrades to a warning.
func (a *Assembler) Assemble(in Input) (*Document, error) {
	a.warnings = nil
	a.literature = false
	a.lastRefNum = 0
	doc := &Document{Frontmatter: in.Frontmatter}

	for _, page := range in.Pages {
		if err := a.assemblePage(doc, page, in.Assets); err != nil {
			return nil, err
		}
	}

	if err := doc.Validate(in.Assets); err != nil {
		return nil, err
	}

	logger.Info("document assembled",
		logger.Int("blocks", len(doc.Blocks)),
		logger.Int("warnings", len(a.warnings)))
	return doc, nil
}

// pageState tracks the in-progress walk over one page's lines.
type pageState struct {
	paragraph []string
	blankRun  int
	refText   []string
	refNum    int
	inRef     bool
}

func (a *Assembler) assemblePage(doc *Document, page PageInput, reg *assets.Registry) error {
	doc.Blocks = append(doc.Blocks, Block{Kind: KindPageBreak, Page: page.Index})

	tables := reg.KeptOnPage(assets.KindTable, page.Index)
	tablesUsed := 0

	st := &pageState{}

	flushParagraph := func() {
		if len(st.paragraph) > 0 {
			doc.Blocks = append(doc.Blocks, Block{
				Kind: KindParagraph,
				Text: strings.Join(st.paragraph, " "),
			})
			st.paragraph = nil
		}
	}
	flushRef := func() {
		if st.inRef {
			doc.Blocks = append(doc.Blocks, Block{
				Kind:  KindReferenceEntry,
				Index: st.refNum,
				Text:  strings.Join(st.refText, " "),
			})
			st.refText = nil
			st.inRef = false
		}
	}

	for i, line := range page.Lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			st.blankRun++
			// Two or more consecutive blank lines end the paragraph. A
			// single blank is a soft break within it.
			if st.blankRun >= 2 {
				flushParagraph()
				flushRef()
			}
			continue
		}
		st.blankRun = 0

		if trimmed == extract.TablePlaceholder {
			flushParagraph()
			flushRef()
			if tablesUsed >= len(tables) {
				return types.NewAppErrorWithDetails(types.ErrStructuralIntegrity,
					"table placeholder does not resolve to a kept asset",
					fmt.Sprintf("page %d has %d kept tables, placeholder %d requested",
						page.Index, len(tables), tablesUsed+1), nil)
			}
			doc.Blocks = append(doc.Blocks, Block{
				Kind:    KindTableRef,
				Ordinal: tables[tablesUsed].Ordinal,
			})
			tablesUsed++
			continue
		}

		if i < len(page.Headings) && page.Headings[i].IsHeading() {
			flushParagraph()
			flushRef()
			doc.Blocks = append(doc.Blocks, Block{
				Kind:  KindHeading,
				Level: page.Headings[i].Level,
				Text:  trimmed,
			})
			a.literature = isLiteratureHeading(trimmed)
			continue
		}

		if a.literature {
			if m := refEntryPattern.FindStringSubmatch(trimmed); m != nil {
				flushParagraph()
				flushRef()
				n, _ := strconv.Atoi(m[1])
				if n != a.lastRefNum+1 {
					a.warn(fmt.Sprintf("literature entry (%d) follows (%d) on page %d",
						n, a.lastRefNum, page.Index))
				}
				a.lastRefNum = n
				st.refNum = n
				st.refText = []string{strings.TrimSpace(m[2])}
				st.inRef = true
				continue
			}
			if st.inRef {
				// Continuation line of the current entry.
				st.refText = append(st.refText, trimmed)
				continue
			}
		}

		st.paragraph = append(st.paragraph, trimmed)
	}

	flushParagraph()
	flushRef()

	// Tables detected on the page but never referenced by a placeholder are
	// appended at the end of the page, in ordinal order.
	for ; tablesUsed < len(tables); tablesUsed++ {
		doc.Blocks = append(doc.Blocks, Block{
			Kind:    KindTableRef,
			Ordinal: tables[tablesUsed].Ordinal,
		})
	}

	// Kept figures are never referenced inline; they all land at page end.
	for _, fig := range reg.KeptOnPage(assets.KindFigure, page.Index) {
		doc.Blocks = append(doc.Blocks, Block{
			Kind:    KindFigureRef,
			Ordinal: fig.Ordinal,
		})
	}

	return nil
}

func (a *Assembler) warn(msg string) {
	a.warnings = append(a.warnings, msg)
	logger.Warn(msg)
}

// isLiteratureHeading reports whether a heading opens the trailing
// reference-list section.
func isLiteratureHeading(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.TrimRight(lower, ".:")
	return lower == "literature" || lower == "references" || lower == "bibliography"
}
