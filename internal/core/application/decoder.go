package application

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/internal/core/ports"
)

const (
	recordSessionID = iota
	recordRequestID
	recordCommand
	recordData
	recordOptions

	minRecordCount = recordCommand + 1
)

// DecodeRequest parses the untrusted buffer written by a reader into a
// bounds-checked request. Every error is a security event.
func DecodeRequest(
	codec ports.RecordCodec, buf []byte, sessionID uint32,
) (*domain.Request, error) {
	if len(buf) == 0 {
		return nil, domain.ErrEmptyRequest
	}
	if len(buf) >= domain.MaxRequestSize {
		return nil, fmt.Errorf(
			"%w: %d bytes", domain.ErrRequestTooLarge, len(buf),
		)
	}

	records, err := codec.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedRecords, err)
	}
	if len(records) > domain.MaxRecordCount {
		return nil, fmt.Errorf(
			"%w: got %d", domain.ErrTooManyRecords, len(records),
		)
	}
	if len(records) < minRecordCount {
		return nil, fmt.Errorf(
			"%w: got %d", domain.ErrMissingRecords, len(records),
		)
	}

	reqSessionID, err := parseUint32(records[recordSessionID])
	if err != nil || reqSessionID != sessionID {
		return nil, domain.ErrInvalidSessionID
	}
	requestID, err := parseUint32(records[recordRequestID])
	if err != nil || requestID == 0 {
		return nil, domain.ErrInvalidRequestID
	}
	cmd, err := domain.ParseCommand(strings.TrimSpace(string(records[recordCommand])))
	if err != nil {
		return nil, err
	}

	req := &domain.Request{
		SessionID: reqSessionID,
		RequestID: requestID,
		Command:   cmd,
	}

	if len(records) > recordData {
		data := records[recordData]
		if len(data) > domain.MaxDataSize {
			return nil, fmt.Errorf(
				"%w: data exceeds %d bytes", domain.ErrRequestTooLarge, domain.MaxDataSize,
			)
		}
		if cmd.KeepsData() {
			req.Data = string(data)
		}
	}
	if len(records) > recordOptions {
		opts, err := domain.ParseOptions(string(records[recordOptions]))
		if err != nil {
			return nil, err
		}
		req.Options = opts
	}
	return req, nil
}

// EncodeRequest is the reader side counterpart of DecodeRequest.
func EncodeRequest(codec ports.RecordCodec, req domain.Request, pin string) ([]byte, error) {
	opts := req.Options.String()
	if pin != "" {
		if opts != "" {
			opts = "," + opts
		}
		opts = "pin=" + pin + opts
	}
	return codec.Encode([][]byte{
		[]byte(strconv.FormatUint(uint64(req.SessionID), 10)),
		[]byte(strconv.FormatUint(uint64(req.RequestID), 10)),
		[]byte(strconv.FormatUint(uint64(req.Command), 10)),
		[]byte(req.Data),
		[]byte(opts),
	})
}

func reasonForDecodeError(err error) domain.Reason {
	if errors.Is(err, domain.ErrInvalidCommand) {
		return domain.ReasonInvalidCommand
	}
	return domain.ReasonInvalidParameter
}

func parseUint32(record []byte) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(string(record)), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
