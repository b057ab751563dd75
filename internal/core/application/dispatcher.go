package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
)

// process authorizes the request and dispatches it. The returned error is
// fatal for the device.
func (d *Device) process(ctx context.Context, req *domain.Request) (*result, error) {
	d.sess.more = req.Options.More
	res := &result{command: req.Command, requestID: req.RequestID}

	if req.Command == domain.CmdCancel {
		d.sess.pending = pendingNone
		return res, nil
	}

	// Lock state mismatches are reported before authentication and are not
	// counted as failures.
	switch {
	case req.Command == domain.CmdLock && d.gate.IsLocked():
		res.outcome = domain.Failed(domain.ReasonLockedAlready)
		return res, nil
	case req.Command == domain.CmdUnlock && !d.gate.IsLocked():
		res.outcome = domain.Failed(domain.ReasonUnlockedAlready)
		return res, nil
	}

	// Exempt commands never validate a PIN, so a wrong one is not counted.
	exempt := d.isAuthExempt(req.Command)

	var pinErr error
	if !exempt && !d.gate.IsAuthorized() &&
		req.Options.HasPin && req.Command != domain.CmdExportWIFKey {
		var err error
		if pinErr, err = d.validatePin(ctx, req.Options.Pin); err != nil {
			return nil, err
		}
	}

	if !exempt && !d.gate.IsAuthorized() {
		res.outcome = d.rejectUnauthorized(req, pinErr)
		return res, nil
	}

	defer d.gate.Consume()
	return d.dispatch(ctx, req, res)
}

func (d *Device) isAuthExempt(cmd domain.Command) bool {
	switch cmd {
	case domain.CmdReset:
		return true
	case domain.CmdLock:
		return !d.gate.IsLocked()
	default:
		return false
	}
}

// validatePin returns the authentication error, if any, and the fatal store
// error, if any.
func (d *Device) validatePin(
	ctx context.Context, pin uint32,
) (authErr error, err error) {
	err = d.updateRecord(ctx, func(r *domain.KeyRecord) error {
		authErr = d.gate.ValidatePin(pin, r)
		return nil
	})
	return
}

func (d *Device) rejectUnauthorized(req *domain.Request, pinErr error) domain.Outcome {
	switch {
	case errors.Is(pinErr, domain.ErrPinUnset):
		return domain.Failed(domain.ReasonPinUnset)
	case pinErr != nil:
		d.metrics.AuthFailures.Inc()
	case !d.gate.IsLocked() && !d.record.IsPinSet():
		return domain.Failed(domain.ReasonPinUnset)
	default:
		// No credential has been presented.
		d.gate.RecordFailure()
		d.metrics.AuthFailures.Inc()
	}

	d.log.WithField("command", req.Command.String()).Warnf(
		"unauthorized request, %d consecutive failures", d.gate.Failures(),
	)
	return domain.Failed(domain.ReasonAuthFailed)
}

func (d *Device) dispatch(
	ctx context.Context, req *domain.Request, res *result,
) (*result, error) {
	res.outcome = domain.Succeeded()

	switch req.Command {
	case domain.CmdLock:
		d.sess.pending = pendingEnroll

	case domain.CmdUnlock:
		if err := d.cfg.Biometric.EraseAll(); err != nil {
			return nil, newHaltError(domain.ErrCodeInitFps, err)
		}
		if err := d.updateRecord(ctx, func(r *domain.KeyRecord) error {
			r.ResetCredentials()
			return nil
		}); err != nil {
			return nil, err
		}
		d.gate.SetLocked(false)
		d.sess.pending = pendingShutdown

	case domain.CmdShowKey, domain.CmdExportWIFKey:

	case domain.CmdSign:
		return d.sign(req, res)

	case domain.CmdSetKey:
		path, err := domain.ParseCheckedKeyPath(req.Data)
		if err == nil {
			err = d.updateRecord(ctx, func(r *domain.KeyRecord) error {
				return r.SetPath(path, d.cfg.AllowHardenedDerivation)
			})
		}
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidKeyPath) {
				return nil, err
			}
			res.outcome = domain.Failed(domain.ReasonInvalidKeyPath)
		}

	case domain.CmdSetPin:
		pin, err := domain.ParseCheckedPin(req.Data)
		if err == nil {
			err = d.updateRecord(ctx, func(r *domain.KeyRecord) error {
				return r.SetPin(pin)
			})
		}
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidPin) {
				return nil, err
			}
			res.outcome = domain.Failed(domain.ReasonInvalidPin)
		}

	case domain.CmdSetNote:
		if err := d.updateRecord(ctx, func(r *domain.KeyRecord) error {
			return r.SetNote(req.Data)
		}); err != nil {
			if !errors.Is(err, domain.ErrNoteTooLong) {
				return nil, err
			}
			res.outcome = domain.Failed(domain.ReasonNoteTooLong)
		}

	case domain.CmdReset:
		d.sess.pending = pendingReset

	default:
		res.outcome = domain.Failed(domain.ReasonInvalidCommand)
	}
	return res, nil
}

func (d *Device) sign(req *domain.Request, res *result) (*result, error) {
	hashes, err := parseSignData(req.Data)
	if err != nil {
		return nil, newHaltError(domain.ErrCodeInvalidSignData, err)
	}
	if len(hashes) == 0 {
		res.outcome = domain.Failed(domain.ReasonInvalidParameter)
		return res, nil
	}

	useMaster := req.Options.UseMasterKey
	for _, hash := range hashes {
		sig, err := d.record.Sign(hash, useMaster)
		if err != nil {
			res.erase()
			return nil, newHaltError(domain.ErrCodeSignFail, err)
		}
		res.signatures = append(res.signatures, sig)
	}
	res.signingKey = d.record.SigningNode(useMaster)
	d.metrics.Signatures.Add(float64(len(res.signatures)))
	return res, nil
}

// parseSignData parses the newline separated hex encoded hashes to sign.
func parseSignData(data string) ([][]byte, error) {
	hashes := make([][]byte, 0)
	for _, line := range strings.Split(data, signatureSep) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hash, err := hex.DecodeString(line)
		if err != nil || len(hash) != hdkey.HashSize {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSignData, line)
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}
