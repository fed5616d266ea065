// Package grouping partitions ownership records by the values of a chosen set of traits.
package grouping

import (
	"strconv"
	"strings"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// Groups holds trait groups in the order their key first appeared
type Groups struct {
	groups []*domain.TraitGroup
	index  map[string]int
}

// Group partitions records by the values of the requested traits.
// Trait names are matched case-insensitively; a missing trait contributes an empty value.
// Every record lands in exactly one group and members keep the input order.
func Group(records []domain.OwnershipRecord, requestedTraits []string) *Groups {
	g := &Groups{index: make(map[string]int)}

	for _, record := range records {
		lookup := traitLookup(record.Attributes)

		key := make([]string, len(requestedTraits))
		for i, trait := range requestedTraits {
			key[i] = lookup[fold(trait)]
		}

		g.add(key, domain.Member{TokenID: record.TokenID, ImageURL: record.ImageURL})
	}

	return g
}

func (g *Groups) add(key []string, member domain.Member) {
	mapKey := joinKey(key)
	if i, ok := g.index[mapKey]; ok {
		g.groups[i].Members = append(g.groups[i].Members, member)
		return
	}

	g.index[mapKey] = len(g.groups)
	g.groups = append(g.groups, &domain.TraitGroup{
		Key:     key,
		Members: []domain.Member{member},
	})
}

// Keys returns the group keys in first-appearance order
func (g *Groups) Keys() [][]string {
	keys := make([][]string, len(g.groups))
	for i, group := range g.groups {
		keys[i] = group.Key
	}
	return keys
}

// All returns the groups in first-appearance order
func (g *Groups) All() []*domain.TraitGroup {
	return g.groups
}

// Len returns the number of groups
func (g *Groups) Len() int {
	return len(g.groups)
}

// MaxMembers returns the size of the largest group, 0 when there are none
func (g *Groups) MaxMembers() int {
	maxMembers := 0
	for _, group := range g.groups {
		maxMembers = max(maxMembers, len(group.Members))
	}
	return maxMembers
}

// traitLookup maps case-folded trait names to values. Attributes with an empty name or
// value are skipped, and a later attribute overrides an earlier one with the same folded name.
func traitLookup(attributes []domain.Attribute) map[string]string {
	lookup := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		if attr.TraitType == "" || attr.Value == "" {
			continue
		}
		lookup[fold(attr.TraitType)] = attr.Value
	}
	return lookup
}

func fold(name string) string {
	return strings.ToLower(name)
}

// joinKey length-prefixes every value so distinct tuples never share a map key
func joinKey(key []string) string {
	var b strings.Builder
	for _, value := range key {
		b.WriteString(strconv.Itoa(len(value)))
		b.WriteByte(':')
		b.WriteString(value)
	}
	return b.String()
}
