package application

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/internal/core/ports"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
	log "github.com/sirupsen/logrus"
)

const (
	touchPollInterval = 50 * time.Millisecond
)

// Halt is returned by Device.Run when the device stops.
type Halt struct {
	Code   domain.ErrorCode
	Reboot bool
}

func (h Halt) String() string {
	if h.Reboot {
		return "reboot"
	}
	return fmt.Sprintf("shutdown (%s)", h.Code)
}

type pendingAction uint8

const (
	pendingNone pendingAction = iota
	pendingEnroll
	pendingReset
	pendingShutdown
)

// session is the volatile state of a boot.
type session struct {
	id          uint32
	fieldOn     bool
	payloadRead bool
	disclosed   bool
	more        bool
	// revealed is set once protected data has been read without more=1.
	// Reads, writes and touches are then ignored until the device halts.
	revealed bool
	pending     pendingAction
	// armedCode is the halt code applied once the gate shutdown is armed.
	armedCode domain.ErrorCode
}

// Device is the actor owning the key record, the authorization gate and the
// session of one boot. Events are posted by the collaborators and handled
// one at a time by Run.
type Device struct {
	cfg     Config
	sched   *scheduler
	metrics *Metrics
	halted  chan struct{}
	log     *log.Entry

	record *domain.KeyRecord
	gate   *domain.AuthGate
	sess   session
}

// NewDevice returns a device ready to be booted with Run.
func NewDevice(cfg Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Device{
		cfg:     cfg,
		sched:   newScheduler(cfg.TaskQueueCapacity),
		metrics: cfg.metrics(),
		halted:  make(chan struct{}),
		log:     log.WithField("component", "device"),
	}, nil
}

// FieldOn notifies that a reader entered the field.
func (d *Device) FieldOn() error {
	return d.post(task{kind: TaskFieldOn})
}

// FieldOff notifies that the reader left the field.
func (d *Device) FieldOff() error {
	return d.post(task{kind: TaskFieldOff})
}

// Written delivers the buffer written by the reader.
func (d *Device) Written(buf []byte) error {
	data := make([]byte, len(buf))
	copy(data, buf)
	return d.post(task{kind: TaskWritten, data: data})
}

// PayloadRead notifies that the reader has read the current payload.
func (d *Device) PayloadRead() error {
	return d.post(task{kind: TaskPayloadRead})
}

// Touched notifies that a finger has been placed on the sensor.
func (d *Device) Touched() error {
	return d.post(task{kind: TaskTouched})
}

// Run boots the device and handles its tasks until it halts. The halt is
// applied through the power manager before returning.
func (d *Device) Run(ctx context.Context) Halt {
	halt := d.run(ctx)
	close(d.halted)

	d.cfg.Transport.Stop()
	if d.record != nil {
		d.record.Zero()
	}

	d.metrics.Halts.WithLabelValues(
		halt.Code.String(), fmt.Sprint(halt.Reboot),
	).Inc()
	if halt.Reboot {
		d.log.Info("rebooting")
		d.cfg.Power.Reboot()
	} else {
		d.log.WithField("code", halt.Code.String()).Info("shutting down")
		d.cfg.Power.Shutdown(halt.Code)
	}
	return halt
}

func (d *Device) run(ctx context.Context) Halt {
	if halt := d.boot(ctx); halt != nil {
		return *halt
	}

	wd := newWatchdog(d.cfg.StandbyTimeout)
	defer wd.stop()

	for {
		if d.sched.isFaulted() {
			d.log.Error("task queue overflow")
			return Halt{Code: domain.ErrCodeSchedError}
		}

		select {
		case <-ctx.Done():
			return Halt{Code: domain.NoError}
		case <-d.sched.fault():
			continue
		case <-wd.C():
			d.log.Info("standby timeout expired")
			return Halt{Code: domain.NoError}
		case t := <-d.sched.next():
			wd.reset()
			d.metrics.QueueDepth.Set(float64(d.sched.pending()))
			d.log.Debugf("handling task %s", t.kind)

			if halt := d.handle(ctx, t); halt != nil {
				return *halt
			}
		}
	}
}

func (d *Device) handle(ctx context.Context, t task) *Halt {
	switch t.kind {
	case TaskFieldOn:
		d.sess.fieldOn = true
		d.sess.payloadRead = false
		return nil
	case TaskFieldOff:
		return d.onFieldOff()
	case TaskPayloadRead:
		return d.onPayloadRead()
	case TaskWritten:
		return d.onWritten(ctx, t.data)
	case TaskTouched:
		return d.onTouched(ctx)
	case TaskEnroll:
		return d.enroll(ctx)
	case TaskConfirmReset:
		return d.confirmReset(ctx)
	default:
		d.log.Errorf("unknown task %s", t.kind)
		return &Halt{Code: domain.ErrCodeUnknown}
	}
}

func (d *Device) boot(ctx context.Context) *Halt {
	d.metrics.Boots.Inc()

	record, err := d.cfg.Repository.GetKeyRecord(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyRecordNotFound) {
			d.log.WithError(err).Warn("failed to load key record")
		}
		if record, err = d.provision(ctx); err != nil {
			d.log.WithError(err).Error("failed to provision key record")
			return &Halt{Code: domain.ErrCodeInitKey}
		}
	}
	if err := record.Validate(); err != nil {
		d.log.WithError(err).Error("invalid key record")
		return &Halt{Code: domain.ErrCodeInitKey}
	}
	d.record = record

	if d.record.PinRetryAfter > 0 {
		if err := d.updateRecord(ctx, func(r *domain.KeyRecord) error {
			r.ElapseCooldown()
			return nil
		}); err != nil {
			return d.haltFromError(err)
		}
	}

	users, err := d.cfg.Biometric.UserCount()
	if err != nil {
		d.log.WithError(err).Error("failed to read fingerprint users")
		return &Halt{Code: domain.ErrCodeInitFps}
	}
	d.gate = domain.NewAuthGate(users > 0)

	sessionID, err := randomSessionID()
	if err != nil {
		d.log.WithError(err).Error("failed to generate session id")
		return &Halt{Code: domain.ErrCodeInitCrypto}
	}
	d.sess = session{id: sessionID}
	d.log = d.log.WithField("session", sessionID)
	d.log.WithField("lock", d.gate.LockState().String()).Info("device booted")

	return d.publish(&result{})
}

func (d *Device) provision(ctx context.Context) (*domain.KeyRecord, error) {
	seed := d.cfg.ProvisionSeed
	if len(seed) == 0 {
		seed = make([]byte, hdkey.RecommendedSeedLen)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
		defer func() {
			for i := range seed {
				seed[i] = 0
			}
		}()
	}

	path := d.cfg.ProvisionPath
	if len(path) == 0 {
		var err error
		if path, err = hdkey.RandomDerivationPath(); err != nil {
			return nil, err
		}
	}

	record, err := domain.NewKeyRecord(seed, path, d.cfg.AllowHardenedDerivation)
	if err != nil {
		return nil, err
	}
	if err := d.cfg.Repository.AddKeyRecord(ctx, record); err != nil {
		return nil, err
	}
	d.log.WithField("path", record.Path.String()).Info("key record provisioned")
	return record, nil
}

func (d *Device) onFieldOff() *Halt {
	d.sess.fieldOn = false
	d.sess.payloadRead = false

	if d.gate.ShutdownArmed() {
		return &Halt{Code: d.armedHaltCode()}
	}
	if d.sess.revealed {
		d.log.Info("protected data read, shutting down")
		return &Halt{Code: domain.NoError}
	}
	return nil
}

func (d *Device) onPayloadRead() *Halt {
	if d.sess.revealed {
		return nil
	}
	d.sess.payloadRead = true

	if d.gate.ShutdownArmed() {
		d.log.Warn("security shutdown")
		return &Halt{Code: d.armedHaltCode()}
	}
	if d.sess.disclosed && !d.sess.more {
		d.sess.revealed = true
		return nil
	}

	switch d.sess.pending {
	case pendingShutdown:
		return &Halt{Code: domain.NoError}
	case pendingEnroll:
		d.sess.pending = pendingNone
		if err := d.sched.post(task{kind: TaskEnroll}); err != nil {
			return &Halt{Code: domain.ErrCodeSchedError}
		}
	}
	return nil
}

func (d *Device) onWritten(ctx context.Context, buf []byte) *Halt {
	if d.sess.revealed {
		d.log.Debug("protected data read, request ignored")
		return nil
	}
	if !d.sess.payloadRead {
		d.log.Warn("request written before reading the session payload, ignored")
		return nil
	}
	d.sess.payloadRead = false

	req, err := DecodeRequest(d.cfg.Codec, buf, d.sess.id)
	if err != nil {
		d.log.WithError(err).Warn("invalid request")
		d.gate.ArmShutdown()
		d.sess.armedCode |= domain.ErrCodeInvalidRequest
		res := &result{outcome: domain.Failed(reasonForDecodeError(err))}
		d.countRequest(res)
		return d.publish(res)
	}

	d.log.WithFields(log.Fields{
		"request": req.RequestID,
		"command": req.Command.String(),
	}).Debug("processing request")

	res, err := d.process(ctx, req)
	if err != nil {
		return d.haltFromError(err)
	}
	d.countRequest(res)
	return d.publish(res)
}

func (d *Device) onTouched(ctx context.Context) *Halt {
	if d.sess.revealed {
		return nil
	}
	if d.sess.pending == pendingReset {
		if err := d.sched.post(task{kind: TaskConfirmReset}); err != nil {
			return &Halt{Code: domain.ErrCodeSchedError}
		}
		return nil
	}
	if !d.gate.IsLocked() || d.gate.IsAuthorized() {
		return nil
	}

	_, err := d.cfg.Biometric.Match(ctx, d.cfg.MatchPolicy)
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrCaptureTimeout):
		return nil
	case errors.Is(err, ports.ErrNoMatch):
	default:
		d.log.WithError(err).Error("fingerprint match failed")
		return &Halt{Code: domain.ErrCodeInitFps}
	}

	if authErr := d.gate.ValidateBiometric(err == nil); authErr != nil {
		d.metrics.AuthFailures.Inc()
		d.log.WithError(authErr).Warn("fingerprint authorization failed")
		if d.gate.ShutdownArmed() {
			d.sess.armedCode |= domain.ErrCodeFpsNoMatch
			if !d.sess.fieldOn {
				return &Halt{Code: d.armedHaltCode()}
			}
		}
	}
	return d.publish(&result{})
}

func (d *Device) enroll(ctx context.Context) *Halt {
	if err := d.cfg.Biometric.Enroll(ctx, d.cfg.EnrollPolicy); err != nil {
		d.log.WithError(err).Warn("fingerprint enrollment failed")
		return &Halt{Reboot: true}
	}
	d.gate.SetLocked(true)
	d.log.Info("fingerprint enrolled, device locked")
	return &Halt{Reboot: true}
}

func (d *Device) confirmReset(ctx context.Context) *Halt {
	if d.sess.pending != pendingReset {
		return nil
	}
	if !d.holdTouch(ctx, d.cfg.resetHoldDuration()) {
		d.log.Debug("reset not confirmed")
		return nil
	}
	d.sess.pending = pendingNone

	if err := d.cfg.Biometric.EraseAll(); err != nil {
		d.log.WithError(err).Error("failed to erase fingerprints")
		return &Halt{Code: domain.ErrCodeInitFps}
	}
	if err := d.cfg.Repository.DeleteKeyRecord(ctx); err != nil {
		d.log.WithError(err).Error("failed to delete key record")
		return &Halt{Code: domain.ErrCodeStorage}
	}
	d.log.Info("factory reset")
	return &Halt{Reboot: true}
}

// holdTouch returns whether the sensor stays touched for the given duration.
func (d *Device) holdTouch(ctx context.Context, duration time.Duration) bool {
	ticker := time.NewTicker(touchPollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(duration)

	for {
		if !d.cfg.Biometric.IsTouched() {
			return false
		}
		if !time.Now().Before(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// publish builds the reply for the given result and serves it.
func (d *Device) publish(res *result) *Halt {
	defer res.erase()

	payload, err := d.buildPayload(res)
	if err != nil {
		return d.haltFromError(err)
	}
	if err := d.cfg.Transport.SetPayload(payload); err != nil {
		d.log.WithError(err).Error("failed to set reply payload")
		return &Halt{Code: domain.ErrCodeInitNfc}
	}
	d.sess.disclosed = res.isDisclosing()
	return nil
}

// updateRecord applies fn to the stored record. Errors returned by fn leave
// the record unchanged and are returned as is, store errors are fatal.
func (d *Device) updateRecord(
	ctx context.Context, fn func(r *domain.KeyRecord) error,
) error {
	var fnErr error
	var updated *domain.KeyRecord
	err := d.cfg.Repository.UpdateKeyRecord(
		ctx, func(r *domain.KeyRecord) (*domain.KeyRecord, error) {
			if fnErr = fn(r); fnErr != nil {
				return nil, fnErr
			}
			updated = r
			return r, nil
		},
	)
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return newHaltError(domain.ErrCodeStorage, err)
	}
	d.record = updated
	return nil
}

func (d *Device) haltFromError(err error) *Halt {
	var herr *haltError
	if errors.As(err, &herr) {
		d.log.WithError(herr.err).Errorf("halting with code %s", herr.code)
		return &Halt{Code: herr.code}
	}
	d.log.WithError(err).Error("halting on unexpected error")
	return &Halt{Code: domain.ErrCodeUnknown}
}

func (d *Device) armedHaltCode() domain.ErrorCode {
	if d.sess.armedCode != domain.NoError {
		return d.sess.armedCode
	}
	return domain.ErrCodeAuthFailed
}

func (d *Device) countRequest(res *result) {
	d.metrics.Requests.WithLabelValues(
		res.command.String(), res.outcome.State.String(),
	).Inc()
}

func (d *Device) post(t task) error {
	select {
	case <-d.halted:
		return ErrDeviceHalted
	default:
	}
	return d.sched.post(t)
}

func randomSessionID() (uint32, error) {
	buf := make([]byte, 4)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, err
		}
		if id := binary.BigEndian.Uint32(buf); id != 0 {
			return id, nil
		}
	}
}
