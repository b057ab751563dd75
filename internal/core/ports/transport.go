package ports

// Transport is the contactless tag emulation. It serves the last payload set
// to any reader entering the field and reports field and NDEF events back to
// the device.
type Transport interface {
	// SetPayload replaces the read-only reply served to the reader.
	SetPayload(payload []byte) error
	// Stop disables the tag emulation until the next boot.
	Stop()
}

// RecordCodec encodes and decodes the record sets exchanged over the
// transport.
type RecordCodec interface {
	Decode(buf []byte) ([][]byte, error)
	Encode(records [][]byte) ([]byte, error)
}
