package application

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
)

const (
	// AppURI is the first record of every reply.
	AppURI = "com.cyphereco.openturnkey"

	mintInfo = "Key Mint: Cyphereco OU\r\n" +
		"Mint Date: 2019/06/09\r\n" +
		"H/W Version: 1.2\r\n" +
		"F/W Version: 1.1."

	LabelSessionID        = "Session_ID"
	LabelRequestID        = "Request_ID"
	LabelBitcoinAddress   = "BTC_Addr"
	LabelPublicKey        = "Public_Key"
	LabelRequestSignature = "Request_Signature"
	LabelMasterExtKey     = "Master_Extended_Key"
	LabelDerivativeExtKey = "Derivative_Exteded_Key"
	LabelDerivativePath   = "Derivative_Path"
	LabelWIFKey           = "WIF_Key"

	sessionDataSep  = "\r\n"
	signatureSep    = "\n"
	responseRecords = 6
)

// result is the outcome of a processed request along with the transient
// data required to build the reply.
type result struct {
	command    domain.Command
	outcome    domain.Outcome
	requestID  uint32
	signingKey *hdkey.Node
	signatures []*hdkey.Signature
}

func (r *result) isDisclosing() bool {
	return r.outcome.State == domain.ExecSuccess && r.command.IsDisclosing()
}

func (r *result) erase() {
	for _, sig := range r.signatures {
		sig.Erase()
	}
	r.signatures = nil
}

// buildPayload returns the encoded reply records for the given result.
func (d *Device) buildPayload(res *result) ([]byte, error) {
	millivolts, err := d.cfg.Battery.Millivolts()
	if err != nil {
		d.log.WithError(err).Warn("failed to sample battery voltage")
		millivolts = 0
	}

	word := domain.StateWord{
		Lock:    d.gate.LockState(),
		Exec:    res.outcome.State,
		Command: res.command,
		Reason:  res.outcome.Reason,
	}

	sessionData, err := d.sessionData(res)
	if err != nil {
		return nil, newHaltError(domain.ErrCodeInitKey, err)
	}
	if len(sessionData) > domain.MaxDataSize {
		return nil, newHaltError(
			domain.ErrCodeTooManySignature,
			fmt.Errorf("%w: %d bytes", ErrTooManySignatures, len(sessionData)),
		)
	}

	hash := chainhash.DoubleHashB([]byte(sessionData))
	sig, err := d.record.Sign(hash, false)
	if err != nil {
		return nil, newHaltError(domain.ErrCodeSignFail, err)
	}
	defer sig.Erase()

	records := [][]byte{
		[]byte(AppURI),
		[]byte(MintInfo(
			d.cfg.FirmwareBuild, d.record.SerialNumber(d.cfg.Network),
			millivolts, d.record.Note,
		)),
		[]byte(word.String()),
		[]byte(d.record.Derivative.HexPublicKey()),
		[]byte(sessionData),
		[]byte(sig.Hex()),
	}
	return d.cfg.Codec.Encode(records)
}

func (d *Device) sessionData(res *result) (string, error) {
	b := &strings.Builder{}
	writeField(b, LabelSessionID, fmt.Sprint(d.sess.id))
	writeField(b, LabelBitcoinAddress, d.record.Derivative.Address(d.cfg.Network))

	if !res.isDisclosing() {
		return b.String(), nil
	}

	writeField(b, LabelRequestID, fmt.Sprint(res.requestID))
	switch res.command {
	case domain.CmdSign:
		sigs := make([]string, 0, len(res.signatures))
		for _, sig := range res.signatures {
			sigs = append(sigs, sig.Hex())
		}
		writeField(b, LabelPublicKey, res.signingKey.HexPublicKey())
		writeField(b, LabelRequestSignature, strings.Join(sigs, signatureSep))
	case domain.CmdShowKey:
		writeField(b, LabelMasterExtKey, d.record.Master.ExtendedPublicKey(d.cfg.Network))
		writeField(b, LabelDerivativeExtKey, d.record.Derivative.ExtendedPublicKey(d.cfg.Network))
		writeField(b, LabelDerivativePath, d.record.Path.String())
	case domain.CmdExportWIFKey:
		wif, err := d.record.Derivative.WIF(d.cfg.Network)
		if err != nil {
			return "", err
		}
		writeField(b, LabelWIFKey, wif)
	}
	return b.String(), nil
}

// MintInfo renders the device metadata record.
func MintInfo(build, serial string, millivolts int, note string) string {
	return fmt.Sprintf(
		"%s%s\r\nSerial No.: %s\r\nBattery Level: %s / %d mV\r\nNote: \r\n%s",
		mintInfo, build, serial, domain.BatteryLevel(millivolts), millivolts, note,
	)
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString("<" + label + ">" + sessionDataSep)
	b.WriteString(value + sessionDataSep)
}

// Response is the reader side view of a device reply.
type Response struct {
	AppURI           string
	MintInfo         string
	State            domain.StateWord
	PublicKey        string
	SessionData      string
	SessionSignature string
}

// ParseResponse parses the records served by the device.
func ParseResponse(records [][]byte) (*Response, error) {
	if len(records) != responseRecords {
		return nil, fmt.Errorf(
			"%w: expected %d records, got %d",
			ErrInvalidResponse, responseRecords, len(records),
		)
	}
	var word uint32
	if _, err := fmt.Sscanf(string(records[2]), "%08X", &word); err != nil {
		return nil, fmt.Errorf("%w: state word: %s", ErrInvalidResponse, err)
	}
	return &Response{
		AppURI:           string(records[0]),
		MintInfo:         string(records[1]),
		State:            domain.UnpackStateWord(word),
		PublicKey:        string(records[3]),
		SessionData:      string(records[4]),
		SessionSignature: string(records[5]),
	}, nil
}

// SessionFields returns the labelled values of the session data.
func (r *Response) SessionFields() map[string]string {
	fields := make(map[string]string)
	lines := strings.Split(r.SessionData, sessionDataSep)
	for i := 0; i+1 < len(lines); i += 2 {
		label := strings.TrimSuffix(strings.TrimPrefix(lines[i], "<"), ">")
		fields[label] = lines[i+1]
	}
	return fields
}

// Signatures returns the request signatures of a Sign reply.
func (r *Response) Signatures() ([]*hdkey.Signature, error) {
	str, ok := r.SessionFields()[LabelRequestSignature]
	if !ok {
		return nil, nil
	}
	sigs := make([]*hdkey.Signature, 0)
	for _, s := range strings.Split(str, signatureSep) {
		buf, err := hex.DecodeString(s)
		if err != nil || len(buf) != hdkey.SignatureSize {
			return nil, fmt.Errorf("%w: signature %q", ErrInvalidResponse, s)
		}
		sig := &hdkey.Signature{}
		copy(sig[:], buf)
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// VerifySessionSignature checks the self-attestation of the reply.
func (r *Response) VerifySessionSignature() bool {
	pubkey, err := hex.DecodeString(r.PublicKey)
	if err != nil {
		return false
	}
	buf, err := hex.DecodeString(r.SessionSignature)
	if err != nil || len(buf) != hdkey.SignatureSize {
		return false
	}
	sig := &hdkey.Signature{}
	copy(sig[:], buf)
	return hdkey.Verify(pubkey, chainhash.DoubleHashB([]byte(r.SessionData)), sig)
}
