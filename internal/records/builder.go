// Package records turns trait groups into spreadsheet rows.
package records

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/grouping"
)

// Builder produces the output rows for one owner/contract pair
type Builder struct {
	ownerAddress    string
	contractAddress string
}

// NewBuilder creates a row builder
func NewBuilder(ownerAddress, contractAddress string) *Builder {
	return &Builder{
		ownerAddress:    ownerAddress,
		contractAddress: contractAddress,
	}
}

// Build returns one row per group in group order. The first data row is row 2,
// below the header. Image slots are filled in token id order and padded with
// empty cells up to layout.ImageCount.
func (b *Builder) Build(groups *grouping.Groups, layout Layout) ([][]domain.Cell, error) {
	rows := make([][]domain.Cell, 0, groups.Len())

	for i, group := range groups.All() {
		if len(group.Key) != layout.TraitCount {
			return nil, fmt.Errorf("group %d has %d trait values, layout expects %d", i, len(group.Key), layout.TraitCount)
		}
		if len(group.Members) > layout.ImageCount {
			return nil, fmt.Errorf("group %d has %d members, layout has %d image slots", i, len(group.Members), layout.ImageCount)
		}

		row := make([]domain.Cell, 0, layout.Width())
		row = append(row,
			domain.FormulaCell(layout.countFormula(i+2)),
			domain.TextCell(b.ownerAddress),
			domain.TextCell(b.contractAddress),
		)

		for _, value := range group.Key {
			row = append(row, domain.TextCell(value))
		}

		members := make([]domain.Member, len(group.Members))
		copy(members, group.Members)
		SortMembers(members)

		for _, member := range members {
			row = append(row, domain.FormulaCell(b.imageFormula(member)))
		}
		for len(row) < layout.Width() {
			row = append(row, domain.TextCell(""))
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// AssetURL returns the marketplace page of a token
func (b *Builder) AssetURL(tokenID string) string {
	return fmt.Sprintf("%s/%s/%s", domain.OPENSEA_ASSET_URL, b.contractAddress, DecimalTokenID(tokenID))
}

// imageFormula links the token's marketplace page, showing the image when there is one
// and the token number otherwise
func (b *Builder) imageFormula(member domain.Member) string {
	link := quote(b.AssetURL(member.TokenID))
	if member.ImageURL == "" {
		return fmt.Sprintf("=HYPERLINK(%s, %s)", link, quote("#"+DecimalTokenID(member.TokenID)))
	}
	return fmt.Sprintf("=HYPERLINK(%s, IMAGE(%s, 1))", link, quote(member.ImageURL))
}

// quote renders a formula string literal
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Headers returns the header row: the fixed columns, the display traits, then Image 1..maxImages
func Headers(displayTraits []string, maxImages int) []string {
	headers := make([]string, 0, domain.LEADING_COLUMNS+len(displayTraits)+maxImages)
	headers = append(headers, domain.HEADER_COUNT, domain.HEADER_OWNER_ADDRESS, domain.HEADER_CONTRACT_ADDRESS)
	headers = append(headers, displayTraits...)
	for i := 1; i <= maxImages; i++ {
		headers = append(headers, domain.HEADER_IMAGE_PREFIX+" "+strconv.Itoa(i))
	}
	return headers
}
