package alchemy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
)

const PROVIDER_NAME = "alchemy"

// getNFTsResponse represents the response of the Alchemy NFT API v2 getNFTs endpoint
type getNFTsResponse struct {
	OwnedNFTs  []OwnedNFT `json:"ownedNfts"`
	PageKey    string     `json:"pageKey"`
	TotalCount int        `json:"totalCount"`
}

// OwnedNFT is a single token in a getNFTs page
type OwnedNFT struct {
	ID struct {
		TokenID string `json:"tokenId"`
	} `json:"id"`
	Media    []Media         `json:"media"`
	TokenURI *Media          `json:"tokenUri"`
	Metadata json.RawMessage `json:"metadata"`
}

// Media holds a gateway URL for the token's media or metadata
type Media struct {
	Gateway string `json:"gateway"`
}

// Metadata holds the token metadata. Attributes are kept raw because
// contracts publish them in inconsistent shapes.
type Metadata struct {
	Attributes json.RawMessage `json:"attributes"`
}

type rawAttribute struct {
	TraitType json.RawMessage `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

// Client defines the interface for the paginated ownership fetcher to enable mocking
//
//go:generate mockgen -source=client.go -destination=../../mocks/alchemy_client.go -package=mocks -mock_names=Client=MockAlchemyClient
type Client interface {
	// FetchAll retrieves every page of tokens of contract held by owner
	FetchAll(ctx context.Context, endpoint, owner, contract string) ([]domain.OwnershipRecord, error)
}

// AlchemyClient implements Client against the Alchemy NFT API
type AlchemyClient struct {
	httpClient adapter.HTTPClient
	json       adapter.JSON
}

// NewClient creates a new Alchemy client
func NewClient(httpClient adapter.HTTPClient, json adapter.JSON) Client {
	return &AlchemyClient{
		httpClient: httpClient,
		json:       json,
	}
}

// FetchAll follows pageKey until the API stops returning one.
// A failed page aborts the whole fetch; nothing is retried.
func (c *AlchemyClient) FetchAll(ctx context.Context, endpoint, owner, contract string) ([]domain.OwnershipRecord, error) {
	var records []domain.OwnershipRecord
	pageKey := ""

	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, PageURL(endpoint, owner, contract, pageKey))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		for _, nft := range resp.OwnedNFTs {
			records = append(records, ToOwnershipRecord(nft))
		}

		logger.DebugCtx(ctx, "Fetched ownership page",
			zap.String("provider", PROVIDER_NAME),
			zap.Int("page", page),
			zap.Int("page_records", len(resp.OwnedNFTs)),
			zap.Int("total_records", len(records)),
			zap.Bool("has_next", resp.PageKey != ""),
		)

		if resp.PageKey == "" {
			break
		}
		pageKey = resp.PageKey
	}

	if len(records) == 0 {
		return nil, &domain.EmptyResultError{Source: domain.SOURCE_API}
	}

	return records, nil
}

func (c *AlchemyClient) fetchPage(ctx context.Context, pageURL string) (*getNFTsResponse, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	respBody, err := c.httpClient.GetBytes(ctx, pageURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to call Alchemy API: %w", err)
	}

	var response getNFTsResponse
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Alchemy response: %w", err)
	}

	return &response, nil
}

// PageURL builds the getNFTs URL for one page; pageKey is omitted on the first page
func PageURL(endpoint, owner, contract, pageKey string) string {
	u := fmt.Sprintf("%s/getNFTs?owner=%s&contractAddresses[]=%s&withMetadata=true",
		strings.TrimRight(endpoint, "/"),
		url.QueryEscape(owner),
		url.QueryEscape(contract),
	)
	if pageKey != "" {
		u += "&pageKey=" + url.QueryEscape(pageKey)
	}
	return u
}

// ToOwnershipRecord converts an API token into an ownership record.
// The image comes from the first media gateway, falling back to the token URI gateway.
func ToOwnershipRecord(nft OwnedNFT) domain.OwnershipRecord {
	record := domain.OwnershipRecord{
		TokenID:    nft.ID.TokenID,
		Attributes: parseAttributes(metadataAttributes(nft.Metadata)),
	}

	if len(nft.Media) > 0 && nft.Media[0].Gateway != "" {
		record.ImageURL = nft.Media[0].Gateway
	} else if nft.TokenURI != nil {
		record.ImageURL = nft.TokenURI.Gateway
	}

	return record
}

// metadataAttributes returns the raw attributes of a metadata object.
// Metadata that is not an object, such as an unparsed JSON string, has none.
func metadataAttributes(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil
	}
	return metadata.Attributes
}

// parseAttributes reads an attributes array, stringifying non-string values.
// Anything that is not an array yields no attributes.
func parseAttributes(raw json.RawMessage) []domain.Attribute {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	attributes := make([]domain.Attribute, 0, len(items))
	for _, item := range items {
		var attr rawAttribute
		if err := json.Unmarshal(item, &attr); err != nil {
			continue
		}
		attributes = append(attributes, domain.Attribute{
			TraitType: stringify(attr.TraitType),
			Value:     stringify(attr.Value),
		})
	}

	return attributes
}

// stringify renders a JSON scalar the way it reads: strings unquoted, null as empty,
// numbers and booleans as their literal text
func stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}

	return string(raw)
}
