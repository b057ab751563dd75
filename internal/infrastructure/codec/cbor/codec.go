package cborcodec

import (
	"fmt"

	"github.com/cyphereco/openturnkey/internal/core/ports"
	"github.com/fxamacker/cbor/v2"
)

const (
	// MaxRecords is the max number of records of a decoded set.
	MaxRecords = 16

	maxNestedLevels = 4
)

type codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec returns a codec that serializes a record set as a CBOR array of
// byte strings.
func NewCodec() (ports.RecordCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{
		MaxArrayElements: MaxRecords,
		MaxNestedLevels:  maxNestedLevels,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &codec{enc, dec}, nil
}

func (c *codec) Decode(buf []byte) ([][]byte, error) {
	var records [][]byte
	if err := c.dec.Unmarshal(buf, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}

func (c *codec) Encode(records [][]byte) ([]byte, error) {
	if len(records) > MaxRecords {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}
	return c.enc.Marshal(records)
}
