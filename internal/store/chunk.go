package store

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// ChunkCodec serializes ownership records into JSON array chunks of bounded size.
//
// Sizes are measured in characters, the unit spreadsheet cell limits use.
// A chunk is "[" + records joined by "," + "]" and never exceeds the ceiling.
type ChunkCodec struct {
	json    adapter.JSON
	jcs     adapter.JCS
	ceiling int
}

// NewChunkCodec creates a chunk codec with the given ceiling in characters
func NewChunkCodec(json adapter.JSON, jcs adapter.JCS, ceiling int) (*ChunkCodec, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("%w: chunk ceiling must be positive, got %d", domain.ErrInvalidConfig, ceiling)
	}

	return &ChunkCodec{
		json:    json,
		jcs:     jcs,
		ceiling: ceiling,
	}, nil
}

// Ceiling returns the maximum chunk size in characters
func (c *ChunkCodec) Ceiling() int {
	return c.ceiling
}

// Encode packs records greedily into chunks: a record that would push the current
// chunk over the ceiling closes it and opens the next one.
// Every record is serialized before any chunk is returned, so an oversize record
// fails the whole call with *domain.ChunkingError.
func (c *ChunkCodec) Encode(records []domain.OwnershipRecord) ([]string, error) {
	serialized := make([]string, len(records))
	for i, record := range records {
		s, err := c.serialize(record)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize record %d: %w", i, err)
		}

		// A record must fit in a chunk on its own, brackets included
		if size := utf8.RuneCountInString(s) + 2; size > c.ceiling {
			return nil, &domain.ChunkingError{
				Index:   i,
				TokenID: record.TokenID,
				Size:    size,
				Ceiling: c.ceiling,
			}
		}
		serialized[i] = s
	}

	var chunks []string
	var current strings.Builder
	currentSize := 0

	for _, s := range serialized {
		size := utf8.RuneCountInString(s)

		if currentSize > 0 && currentSize+1+size+1 > c.ceiling {
			current.WriteByte(']')
			chunks = append(chunks, current.String())
			current.Reset()
			currentSize = 0
		}

		if currentSize == 0 {
			current.WriteByte('[')
			currentSize = 1
		} else {
			current.WriteByte(',')
			currentSize++
		}
		current.WriteString(s)
		currentSize += size
	}

	if currentSize > 0 {
		current.WriteByte(']')
		chunks = append(chunks, current.String())
	}

	return chunks, nil
}

// DecodeChunk parses a single chunk into its records
func (c *ChunkCodec) DecodeChunk(chunk string) ([]domain.OwnershipRecord, error) {
	if strings.TrimSpace(chunk) == "" {
		return nil, errors.New("empty chunk")
	}

	var records []domain.OwnershipRecord
	if err := c.json.Unmarshal([]byte(chunk), &records); err != nil {
		return nil, fmt.Errorf("failed to decode chunk: %w", err)
	}

	return records, nil
}

// ChunkDecodeError names the chunk that could not be decoded
type ChunkDecodeError struct {
	Index int
	Err   error
}

func (e *ChunkDecodeError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkDecodeError) Unwrap() error {
	return e.Err
}

// Decode parses chunks in order and concatenates their records
func (c *ChunkCodec) Decode(chunks []string) ([]domain.OwnershipRecord, error) {
	records := make([]domain.OwnershipRecord, 0)
	for i, chunk := range chunks {
		decoded, err := c.DecodeChunk(chunk)
		if err != nil {
			return nil, &ChunkDecodeError{Index: i, Err: err}
		}
		records = append(records, decoded...)
	}

	return records, nil
}

// serialize renders a record as canonical JSON so identical records always have the same size
func (c *ChunkCodec) serialize(record domain.OwnershipRecord) (string, error) {
	data, err := c.json.Marshal(record)
	if err != nil {
		return "", err
	}

	canonical, err := c.jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record: %w", err)
	}

	return string(canonical), nil
}

// decodeEntry decodes the chunks of a cache entry, turning a decode failure into a corruption warning
func decodeEntry(codec *ChunkCodec, ownerAddress, contractAddress string, chunks []string) ([]domain.OwnershipRecord, error) {
	records, err := codec.Decode(chunks)
	if err != nil {
		warning := &domain.CacheCorruptionWarning{
			OwnerAddress:    ownerAddress,
			ContractAddress: contractAddress,
			Err:             err,
		}
		var decodeErr *ChunkDecodeError
		if errors.As(err, &decodeErr) {
			warning.Chunk = decodeErr.Index
		}
		return nil, warning
	}

	return records, nil
}
