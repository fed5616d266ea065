package records

import (
	"fmt"

	"github.com/feral-file/nft-trait-viewer/internal/columns"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// Layout is the column arrangement shared by every row of a run:
// Count, Owner Address, Contract Address, the trait columns, then the image slots.
type Layout struct {
	TraitCount int
	ImageCount int

	FirstImageColumn int
	LastImageColumn  int
	FirstImageLabel  string
	LastImageLabel   string
}

// NewLayout computes the layout for traitCount trait columns and maxImages image slots
func NewLayout(traitCount, maxImages int) (Layout, error) {
	if traitCount < 0 {
		return Layout{}, fmt.Errorf("invalid trait count %d", traitCount)
	}
	if maxImages < 1 {
		return Layout{}, fmt.Errorf("a layout needs at least one image slot, got %d", maxImages)
	}

	first := domain.LEADING_COLUMNS + traitCount + 1
	last := domain.LEADING_COLUMNS + traitCount + maxImages

	firstLabel, err := columns.IndexToLabel(first)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to label first image column: %w", err)
	}
	lastLabel, err := columns.IndexToLabel(last)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to label last image column: %w", err)
	}

	return Layout{
		TraitCount:       traitCount,
		ImageCount:       maxImages,
		FirstImageColumn: first,
		LastImageColumn:  last,
		FirstImageLabel:  firstLabel,
		LastImageLabel:   lastLabel,
	}, nil
}

// Width returns the total number of columns of a row
func (l Layout) Width() int {
	return l.LastImageColumn
}

// countFormula counts the filled image slots of a row
func (l Layout) countFormula(row int) string {
	return fmt.Sprintf("=COUNTA(%s)", columns.RangeRef(l.FirstImageLabel, l.LastImageLabel, row))
}
