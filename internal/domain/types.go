package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Attribute is a single metadata trait of a token
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// OwnershipRecord is one token held by the owner, as returned by the indexing API
type OwnershipRecord struct {
	// TokenID is the string encoding of an unsigned integer of arbitrary size (decimal or 0x-prefixed hex)
	TokenID    string      `json:"token_id"`
	Attributes []Attribute `json:"attributes,omitempty"`
	ImageURL   string      `json:"image_url,omitempty"`
}

// Member is the token identity kept per group
type Member struct {
	TokenID  string
	ImageURL string
}

// TraitGroup is the set of tokens sharing the same values for every requested trait
type TraitGroup struct {
	Key     []string
	Members []Member
}

// CacheEntry is one persisted cache row for an owner/contract pair
type CacheEntry struct {
	OwnerAddress    string
	ContractAddress string
	CachedAt        time.Time
	Chunks          []string
}

// RunConfig is everything a single run needs from the configuration collaborator.
// Addresses are kept as the user entered them.
type RunConfig struct {
	Endpoint        string
	OwnerAddress    string
	ContractAddress string
	DisplayTraits   []string
	UseCache        bool
}

// CacheKey returns the owner and contract the cache entry is stored under
func (c *RunConfig) CacheKey() (string, string) {
	return CacheAddress(c.OwnerAddress), CacheAddress(c.ContractAddress)
}

// CellKind tells the renderer how to write a cell
type CellKind int

const (
	CellText CellKind = iota
	CellFormula
)

// Cell is a single output cell
type Cell struct {
	Kind CellKind
	Text string
}

// TextCell creates a plain text cell
func TextCell(s string) Cell {
	return Cell{Kind: CellText, Text: s}
}

// FormulaCell creates a formula cell, the formula includes the leading "="
func FormulaCell(formula string) Cell {
	return Cell{Kind: CellFormula, Text: formula}
}

// Empty reports whether the cell renders as blank
func (c Cell) Empty() bool {
	return c.Text == ""
}

// Table is the full output handed to the renderer
type Table struct {
	SheetName  string
	Headers    []string
	Rows       [][]Cell
	TraitCount int
	ImageCount int
}

// IsEthereumAddress checks if a string is a valid Ethereum address
func IsEthereumAddress(s string) bool {
	return common.IsHexAddress(s)
}

// IsHexPrefixed reports whether a value looks like a hex address rather than a name
func IsHexPrefixed(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

// CacheAddress case-folds an address or name so differently cased inputs share a cache entry
func CacheAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SheetKey derives the output sheet name from the last six characters of both addresses
func SheetKey(ownerAddress, contractAddress string) string {
	return lastN(ownerAddress, 6) + "/" + lastN(contractAddress, 6)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
