// Package columns converts between 1-based column indexes and spreadsheet column labels.
//
// Labels are bijective base-26 numerals over 'A'..'Z' with no zero digit, so
// "Z" is followed by "AA" and every positive index has exactly one label.
package columns

import (
	"fmt"
	"strings"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

const (
	// MaxLabelLength is the longest supported label
	MaxLabelLength = 3

	// MaxIndex is the index of "ZZZ": 26 + 26^2 + 26^3
	MaxIndex = 18278

	radix = 26
)

// IndexToLabel returns the column label for a 1-based index
func IndexToLabel(n int) (string, error) {
	if n < 1 || n > MaxIndex {
		return "", fmt.Errorf("%w: %d not in [1, %d]", domain.ErrColumnOutOfRange, n, MaxIndex)
	}

	var buf [MaxLabelLength]byte
	i := len(buf)
	for n > 0 {
		digit := (n - 1) % radix
		i--
		buf[i] = byte('A' + digit)
		n = (n - digit - 1) / radix
	}

	return string(buf[i:]), nil
}

// LabelToIndex returns the 1-based index of a column label. Lowercase letters are accepted.
func LabelToIndex(label string) (int, error) {
	if label == "" || len(label) > MaxLabelLength {
		return 0, fmt.Errorf("%w: invalid label %q", domain.ErrColumnOutOfRange, label)
	}

	n := 0
	for _, r := range strings.ToUpper(label) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: invalid label %q", domain.ErrColumnOutOfRange, label)
		}
		n = n*radix + int(r-'A') + 1
	}

	return n, nil
}

// RangeRef returns an A1-style range on a single row, e.g. "E2:H2"
func RangeRef(firstColumn, lastColumn string, row int) string {
	return fmt.Sprintf("%s%d:%s%d", firstColumn, row, lastColumn, row)
}
