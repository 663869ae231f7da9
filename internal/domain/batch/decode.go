package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeProposals reads a create request. The body is either a JSON array
// of proposals or an object with a "proposals" array. Each item keeps its
// raw bytes for the audit payload.
func DecodeProposals(r io.Reader) ([]ProposalInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read proposals: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyProposals
	}

	var items []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrMalformedProposals)
		}
	case '{':
		var wrapper struct {
			Proposals []json.RawMessage `json:"proposals"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrMalformedProposals)
		}
		items = wrapper.Proposals
	default:
		return nil, ErrMalformedProposals
	}

	if len(items) == 0 {
		return nil, ErrEmptyProposals
	}

	proposals := make([]ProposalInput, 0, len(items))
	for i, raw := range items {
		var p ProposalInput
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("item %d: %v: %w", i, err, ErrInvalidProposal)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		p.Raw = append(json.RawMessage(nil), raw...)
		proposals = append(proposals, p)
	}
	return proposals, nil
}
