package viewer

import (
	"context"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// Fetcher retrieves every ownership record of an owner/contract pair from the indexing API.
// The alchemy client satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, endpoint, ownerAddress, contractAddress string) ([]domain.OwnershipRecord, error)
}
