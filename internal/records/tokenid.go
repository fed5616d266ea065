package records

import (
	"math/big"
	"sort"
	"strings"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// parseTokenID parses a decimal or 0x-prefixed hex token id. Leading zeros stay decimal.
func parseTokenID(id string) (*big.Int, bool) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "_+-") {
		return nil, false
	}

	base := 10
	if len(id) > 2 && id[0] == '0' && (id[1] == 'x' || id[1] == 'X') {
		id, base = id[2:], 16
	}
	return new(big.Int).SetString(id, base)
}

// CompareTokenIDs orders token ids numerically. When either id is not a number
// both are compared as strings.
func CompareTokenIDs(a, b string) int {
	x, okA := parseTokenID(a)
	y, okB := parseTokenID(b)
	if okA && okB {
		return x.Cmp(y)
	}
	return strings.Compare(a, b)
}

// SortMembers sorts members by token id in place, keeping the input order of equal ids
func SortMembers(members []domain.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		return CompareTokenIDs(members[i].TokenID, members[j].TokenID) < 0
	})
}

// DecimalTokenID renders a token id in base 10. Ids that do not parse are returned unchanged.
func DecimalTokenID(id string) string {
	n, ok := parseTokenID(id)
	if !ok {
		return id
	}
	return n.String()
}
