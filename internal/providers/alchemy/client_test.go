package alchemy_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/mocks"
	"github.com/feral-file/nft-trait-viewer/internal/providers/alchemy"
)

const (
	testEndpoint = "https://eth-mainnet.g.alchemy.com/nft/v2/test-key"
	testOwner    = "0x1111111111111111111111111111111111111111"
	testContract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var expectedHeaders = map[string]string{
	"Content-Type": "application/json",
}

func TestAlchemyClient_FetchAll_FollowsPageKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTPClient := mocks.NewMockHTTPClient(ctrl)
	client := alchemy.NewClient(mockHTTPClient, adapter.NewJSON())
	ctx := context.Background()

	firstPage := []byte(`{
		"ownedNfts": [
			{
				"id": {"tokenId": "0x05"},
				"media": [{"gateway": "https://img.example/5.png"}],
				"metadata": {"attributes": [{"trait_type": "Background", "value": "Blue"}]}
			},
			{
				"id": {"tokenId": "7"},
				"media": [],
				"tokenUri": {"gateway": "https://meta.example/7"},
				"metadata": {"attributes": []}
			}
		],
		"pageKey": "next+page/=="
	}`)
	secondPage := []byte(`{
		"ownedNfts": [
			{"id": {"tokenId": "105"}, "media": [{"gateway": "https://img.example/105.png"}]}
		]
	}`)

	gomock.InOrder(
		mockHTTPClient.EXPECT().
			GetBytes(ctx, alchemy.PageURL(testEndpoint, testOwner, testContract, ""), expectedHeaders).
			Return(firstPage, nil),
		mockHTTPClient.EXPECT().
			GetBytes(ctx, alchemy.PageURL(testEndpoint, testOwner, testContract, "next+page/=="), expectedHeaders).
			Return(secondPage, nil),
	)

	records, err := client.FetchAll(ctx, testEndpoint, testOwner, testContract)

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "0x05", records[0].TokenID)
	assert.Equal(t, "https://img.example/5.png", records[0].ImageURL)
	assert.Equal(t, []domain.Attribute{{TraitType: "Background", Value: "Blue"}}, records[0].Attributes)
	assert.Equal(t, "7", records[1].TokenID)
	assert.Equal(t, "https://meta.example/7", records[1].ImageURL)
	assert.Empty(t, records[1].Attributes)
	assert.Equal(t, "105", records[2].TokenID)
}

func TestAlchemyClient_FetchAll_APIErrorAbortsFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTPClient := mocks.NewMockHTTPClient(ctrl)
	client := alchemy.NewClient(mockHTTPClient, adapter.NewJSON())
	ctx := context.Background()

	gomock.InOrder(
		mockHTTPClient.EXPECT().
			GetBytes(ctx, gomock.Any(), expectedHeaders).
			Return([]byte(`{"ownedNfts":[{"id":{"tokenId":"1"}}],"pageKey":"p2"}`), nil),
		mockHTTPClient.EXPECT().
			GetBytes(ctx, gomock.Any(), expectedHeaders).
			Return(nil, &domain.APIError{StatusCode: 500, Body: "internal error"}),
	)

	records, err := client.FetchAll(ctx, testEndpoint, testOwner, testContract)

	assert.Nil(t, records)
	assert.ErrorIs(t, err, domain.ErrAPI)
	assert.Contains(t, err.Error(), "page 2")

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "internal error", apiErr.Body)
}

func TestAlchemyClient_FetchAll_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTPClient := mocks.NewMockHTTPClient(ctrl)
	client := alchemy.NewClient(mockHTTPClient, adapter.NewJSON())
	ctx := context.Background()

	mockHTTPClient.EXPECT().
		GetBytes(ctx, gomock.Any(), expectedHeaders).
		Return([]byte(`{"ownedNfts":[],"totalCount":0}`), nil)

	records, err := client.FetchAll(ctx, testEndpoint, testOwner, testContract)

	assert.Nil(t, records)
	assert.ErrorIs(t, err, domain.ErrEmptyResult)

	var emptyErr *domain.EmptyResultError
	require.True(t, errors.As(err, &emptyErr))
	assert.Equal(t, domain.SOURCE_API, emptyErr.Source)
}

func TestAlchemyClient_FetchAll_StringMetadataKeepsToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTPClient := mocks.NewMockHTTPClient(ctrl)
	client := alchemy.NewClient(mockHTTPClient, adapter.NewJSON())
	ctx := context.Background()

	mockHTTPClient.EXPECT().
		GetBytes(ctx, gomock.Any(), expectedHeaders).
		Return([]byte(`{"ownedNfts": [
			{"id": {"tokenId": "1"}, "metadata": "ipfs://QmBroken"},
			{"id": {"tokenId": "2"}, "metadata": {"attributes": [{"trait_type": "Eyes", "value": "Sleepy"}]}}
		]}`), nil)

	records, err := client.FetchAll(ctx, testEndpoint, testOwner, testContract)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Empty(t, records[0].Attributes)
	assert.Equal(t, []domain.Attribute{{TraitType: "Eyes", Value: "Sleepy"}}, records[1].Attributes)
}

func TestAlchemyClient_FetchAll_UnmarshalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTPClient := mocks.NewMockHTTPClient(ctrl)
	mockJSON := mocks.NewMockJSON(ctrl)
	client := alchemy.NewClient(mockHTTPClient, mockJSON)
	ctx := context.Background()

	body := []byte(`not json`)
	mockHTTPClient.EXPECT().
		GetBytes(ctx, gomock.Any(), expectedHeaders).
		Return(body, nil)
	mockJSON.EXPECT().
		Unmarshal(body, gomock.Any()).
		Return(errors.New("invalid character"))

	records, err := client.FetchAll(ctx, testEndpoint, testOwner, testContract)

	assert.Nil(t, records)
	assert.ErrorContains(t, err, "failed to unmarshal Alchemy response")
}

func TestPageURL(t *testing.T) {
	assert.Equal(t,
		"https://api.example/v2/key/getNFTs?owner=0xabc&contractAddresses[]=0xdef&withMetadata=true",
		alchemy.PageURL("https://api.example/v2/key/", "0xabc", "0xdef", ""),
	)
	assert.Equal(t,
		"https://api.example/v2/key/getNFTs?owner=0xabc&contractAddresses[]=0xdef&withMetadata=true&pageKey=a%2Bb%2F%3D",
		alchemy.PageURL("https://api.example/v2/key", "0xabc", "0xdef", "a+b/="),
	)
}

func TestToOwnershipRecord(t *testing.T) {
	tests := []struct {
		name string
		nft  string
		want domain.OwnershipRecord
	}{
		{
			name: "scalar attribute values are stringified",
			nft: `{
				"id": {"tokenId": "1"},
				"metadata": {"attributes": [
					{"trait_type": "Level", "value": 3},
					{"trait_type": "Legendary", "value": true},
					{"trait_type": "Hat", "value": null},
					{"value": "orphan"}
				]}
			}`,
			want: domain.OwnershipRecord{
				TokenID: "1",
				Attributes: []domain.Attribute{
					{TraitType: "Level", Value: "3"},
					{TraitType: "Legendary", Value: "true"},
					{TraitType: "Hat", Value: ""},
					{TraitType: "", Value: "orphan"},
				},
			},
		},
		{
			name: "non array attributes are ignored",
			nft:  `{"id": {"tokenId": "2"}, "metadata": {"attributes": {"Background": "Blue"}}}`,
			want: domain.OwnershipRecord{TokenID: "2"},
		},
		{
			name: "metadata returned as a string is ignored",
			nft:  `{"id": {"tokenId": "5"}, "media": [{"gateway": "https://img.example/5.png"}], "metadata": "{\"attributes\": []}"}`,
			want: domain.OwnershipRecord{TokenID: "5", ImageURL: "https://img.example/5.png"},
		},
		{
			name: "null metadata",
			nft:  `{"id": {"tokenId": "6"}, "metadata": null}`,
			want: domain.OwnershipRecord{TokenID: "6"},
		},
		{
			name: "empty media gateway falls back to token uri",
			nft:  `{"id": {"tokenId": "3"}, "media": [{"gateway": ""}], "tokenUri": {"gateway": "https://meta.example/3"}}`,
			want: domain.OwnershipRecord{TokenID: "3", ImageURL: "https://meta.example/3"},
		},
		{
			name: "no media at all",
			nft:  `{"id": {"tokenId": "4"}}`,
			want: domain.OwnershipRecord{TokenID: "4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nft alchemy.OwnedNFT
			require.NoError(t, json.Unmarshal([]byte(tt.nft), &nft))

			got := alchemy.ToOwnershipRecord(nft)
			assert.Equal(t, tt.want.TokenID, got.TokenID)
			assert.Equal(t, tt.want.ImageURL, got.ImageURL)
			if len(tt.want.Attributes) == 0 {
				assert.Empty(t, got.Attributes)
			} else {
				assert.Equal(t, tt.want.Attributes, got.Attributes)
			}
		})
	}
}
