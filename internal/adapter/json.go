package adapter

import (
	"github.com/bytedance/sonic"
)

// JSON defines an interface for JSON operations to enable mocking
//
//go:generate mockgen -source=json.go -destination=../mocks/json.go -package=mocks -mock_names=JSON=MockJSON
type JSON interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// SonicJSON implements JSON with sonic in encoding/json compatible mode
// (sorted map keys, HTML escaping), so encoded output is stable across runs
type SonicJSON struct {
	api sonic.API
}

// NewJSON creates a new JSON implementation
func NewJSON() JSON {
	return &SonicJSON{api: sonic.ConfigStd}
}

func (j *SonicJSON) Marshal(v interface{}) ([]byte, error) {
	return j.api.Marshal(v)
}

func (j *SonicJSON) Unmarshal(data []byte, v interface{}) error {
	return j.api.Unmarshal(data, v)
}
