package domain

const (
	// Marketplace constants
	OPENSEA_ASSET_URL = "https://opensea.io/assets/ethereum"

	// Output table constants
	HEADER_COUNT            = "Count"
	HEADER_OWNER_ADDRESS    = "Owner Address"
	HEADER_CONTRACT_ADDRESS = "Contract Address"
	HEADER_TIMESTAMP        = "Timestamp"
	HEADER_IMAGE_PREFIX     = "Image"

	// LEADING_COLUMNS is the number of fixed columns before the trait columns
	// (Count, Owner Address, Contract Address)
	LEADING_COLUMNS = 3

	// Result sources
	SOURCE_API   = "api"
	SOURCE_CACHE = "cache"
)
