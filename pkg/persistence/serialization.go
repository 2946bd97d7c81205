package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/web3-social/profile-keys-go/pkg/types"
)

// MarshalBinding serializes a StoredBinding to JSON bytes.
func MarshalBinding(b *types.StoredBinding) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("cannot marshal nil StoredBinding")
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal StoredBinding to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalBinding deserializes a StoredBinding from JSON bytes.
func UnmarshalBinding(data []byte) (*types.StoredBinding, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var b types.StoredBinding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to StoredBinding: %w", err)
	}

	return &b, nil
}

// MarshalActionRecord serializes an ActionRecord to JSON bytes.
func MarshalActionRecord(r *types.ActionRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil ActionRecord")
	}

	return json.Marshal(r)
}

// UnmarshalActionRecord deserializes an ActionRecord from JSON bytes.
func UnmarshalActionRecord(data []byte) (*types.ActionRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r types.ActionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ActionRecord: %w", err)
	}

	return &r, nil
}
