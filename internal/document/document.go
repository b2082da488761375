// Package document defines the canonical intermediate document produced by
// assembly and consumed by translation and serialization.
package document

import (
	"fmt"

	"guideline-translator/internal/assets"
	"guideline-translator/internal/types"
)

// BlockKind discriminates the variants of a Block.
type BlockKind int

const (
	KindHeading BlockKind = iota
	KindParagraph
	KindFigureRef
	KindTableRef
	KindPageBreak
	KindReferenceEntry
)

// String returns the block kind name.
func (k BlockKind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindParagraph:
		return "paragraph"
	case KindFigureRef:
		return "figure-ref"
	case KindTableRef:
		return "table-ref"
	case KindPageBreak:
		return "page-break"
	case KindReferenceEntry:
		return "reference-entry"
	default:
		return "unknown"
	}
}

// Block is the atomic unit of a document body. Which fields are meaningful
// depends on Kind: Heading uses Level and Text, Paragraph uses Text,
// FigureRef and TableRef use Ordinal, PageBreak uses Page, and
// ReferenceEntry uses Index and Text.
type Block struct {
	Kind    BlockKind
	Level   int
	Text    string
	Ordinal int
	Page    int
	Index   int
	// Fallback marks a block whose translation failed and whose Text still
	// carries the source language.
	Fallback bool
}

// Document is an immutable snapshot of an assembled guideline document.
type Document struct {
	Frontmatter types.Frontmatter
	Blocks      []Block
}

// Clone returns an independent copy whose blocks may be mutated without
// affecting the receiver.
func (d *Document) Clone() *Document {
	blocks := make([]Block, len(d.Blocks))
	copy(blocks, d.Blocks)
	return &Document{Frontmatter: d.Frontmatter, Blocks: blocks}
}

// KindSequence returns the ordered block kinds, used to compare structural
// shape between a source document and its translation.
func (d *Document) KindSequence() []BlockKind {
	kinds := make([]BlockKind, len(d.Blocks))
	for i, b := range d.Blocks {
		kinds[i] = b.Kind
	}
	return kinds
}

// Validate checks referential integrity: every FigureRef and TableRef must
// resolve to a kept asset of matching kind. A violation is fatal because
// publishing a broken anchor is worse than failing the run.
func (d *Document) Validate(reg *assets.Registry) error {
	for i, b := range d.Blocks {
		switch b.Kind {
		case KindFigureRef:
			if !reg.Has(assets.KindFigure, b.Ordinal) {
				return types.NewAppErrorWithDetails(types.ErrStructuralIntegrity,
					"figure reference does not resolve to a kept asset",
					fmt.Sprintf("block %d references figure_%d", i, b.Ordinal), nil)
			}
		case KindTableRef:
			if !reg.Has(assets.KindTable, b.Ordinal) {
				return types.NewAppErrorWithDetails(types.ErrStructuralIntegrity,
					"table reference does not resolve to a kept asset",
					fmt.Sprintf("block %d references table_%d", i, b.Ordinal), nil)
			}
		}
	}
	return nil
}

// SameShape reports whether two documents have identical block counts, kind
// sequences, and reference ordinals. Only Heading and Paragraph text may
// differ between a source document and its translation.
func SameShape(a, b *Document) bool {
	if len(a.Blocks) != len(b.Blocks) {
		return false
	}
	for i := range a.Blocks {
		x, y := a.Blocks[i], b.Blocks[i]
		if x.Kind != y.Kind || x.Ordinal != y.Ordinal || x.Level != y.Level || x.Page != y.Page {
			return false
		}
	}
	return true
}
