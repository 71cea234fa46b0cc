// Package engine is the concurrent dispatch core: it resolves target
// devices, builds provider payloads through the channel clients, fans out
// sends, and reconciles registration and message-record state from the
// per-device outcomes.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-gateway/internal/clients"
	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

var (
	// ErrNoChannelsConfigured aborts a send when the application has no
	// provider credentials at all but messages need dispatching.
	ErrNoChannelsConfigured = errors.New("engine: application has no push channels configured")
	// ErrNoTargetDevices aborts a send when a message targets a specific
	// activation and no registration exists for it.
	ErrNoTargetDevices = errors.New("engine: no registered device for targeted activation")
)

// ClientSource yields the provider client bundle for an application.
type ClientSource interface {
	GetClients(ctx context.Context, appID string) (*clients.Bundle, error)
}

// DeviceSource is the slice of the registration store the engine needs:
// dispatch-path lookups plus the terminal-failure deletion.
type DeviceSource interface {
	FindByUser(ctx context.Context, appID, userID string) ([]storage.DeviceRegistration, error)
	FindByUserAndActivation(ctx context.Context, appID, userID, activationID string) ([]storage.DeviceRegistration, error)
	Delete(ctx context.Context, reg *storage.DeviceRegistration) error
}

// Engine fans out messages to devices. A nil record store disables
// message persistence.
type Engine struct {
	clients ClientSource
	devices DeviceSource
	records storage.MessageStore
	timeout time.Duration
	logger  *slog.Logger
}

func New(clientSource ClientSource, devices DeviceSource, records storage.MessageStore, timeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		clients: clientSource,
		devices: devices,
		records: records,
		timeout: timeout,
		logger:  logger.With("component", "DispatchEngine"),
	}
}

// unit is one (message, target device) pair queued for dispatch.
type unit struct {
	msg      *push.Message
	device   storage.DeviceRegistration
	recordID string
}

// tally collects one platform's counters; completions run on provider
// worker goroutines, so every field is atomic.
type tally struct {
	sent, pending, failed, total atomic.Int64
}

// Send validates and dispatches a batch of messages for one application
// and blocks until every in-flight send has completed or the dispatch
// deadline expires. Per-device outcomes never fail the batch; only the
// pre-dispatch error class is returned as an error.
func (e *Engine) Send(ctx context.Context, appID string, msgs []*push.Message) (*push.BatchResult, error) {
	bundle, err := e.clients.GetClients(ctx, appID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 && bundle.Empty() {
		return nil, fmt.Errorf("app %s: %w", appID, ErrNoChannelsConfigured)
	}

	units, err := e.resolveUnits(ctx, appID, msgs)
	if err != nil {
		return nil, err
	}

	tallies := make(map[push.Platform]*tally, 3)
	for _, p := range bundle.Platforms() {
		tallies[p] = &tally{}
	}

	sendCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()
	// Side-effect writes must survive the dispatch deadline.
	effectCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := range units {
		u := &units[i]
		u.recordID = e.createRecord(effectCtx, appID, u)

		if u.msg.Personal && !u.device.Active {
			// The identity behind this device is blocked or removed;
			// the record stays PENDING and no counter moves.
			e.logger.Debug("skipping personal message for inactive device",
				"app_id", appID, "registration_id", u.device.ID)
			continue
		}

		channel := bundle.Channel(u.device.Platform)
		if channel == nil {
			// No client for this device's platform: terminal for the
			// record, invisible in the counters (the platform has no bucket).
			e.finishRecord(effectCtx, u.recordID, storage.StatusFailed)
			e.logger.Debug("skipping device on unconfigured platform",
				"app_id", appID, "platform", u.device.Platform)
			continue
		}

		t := tallies[u.device.Platform]
		t.total.Add(1)
		wg.Add(1)
		go func(u *unit) {
			defer wg.Done()
			res := channel.Send(sendCtx, u.device.PushToken, u.msg)
			e.complete(effectCtx, u, res, t)
		}(u)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timedOut := false
	select {
	case <-done:
	case <-sendCtx.Done():
		timedOut = true
		e.logger.Warn("dispatch deadline expired before all completions arrived",
			"app_id", appID, "timeout", e.timeout)
	}

	return snapshot(tallies, timedOut), nil
}

// SendToDevice dispatches one message to one already resolved device; the
// campaign driver uses it for paged delivery.
func (e *Engine) SendToDevice(ctx context.Context, appID string, device *storage.DeviceRegistration, msg *push.Message) (*push.BatchResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	bundle, err := e.clients.GetClients(ctx, appID)
	if err != nil {
		return nil, err
	}
	if bundle.Empty() {
		return nil, fmt.Errorf("app %s: %w", appID, ErrNoChannelsConfigured)
	}

	tallies := make(map[push.Platform]*tally, 3)
	for _, p := range bundle.Platforms() {
		tallies[p] = &tally{}
	}
	effectCtx := context.WithoutCancel(ctx)

	u := &unit{msg: msg, device: *device}
	u.recordID = e.createRecord(effectCtx, appID, u)

	switch {
	case msg.Personal && !device.Active:
		// record stays PENDING, nothing dispatched
	case bundle.Channel(device.Platform) == nil:
		e.finishRecord(effectCtx, u.recordID, storage.StatusFailed)
	default:
		t := tallies[device.Platform]
		t.total.Add(1)
		res := bundle.Channel(device.Platform).Send(ctx, device.PushToken, msg)
		e.complete(effectCtx, u, res, t)
	}

	return snapshot(tallies, false), nil
}

// resolveUnits validates every message and expands it into per-device
// dispatch units. Any failure here aborts the call before dispatch.
func (e *Engine) resolveUnits(ctx context.Context, appID string, msgs []*push.Message) ([]unit, error) {
	var units []unit
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return nil, err
		}

		var (
			devices []storage.DeviceRegistration
			err     error
		)
		if msg.ActivationID != "" {
			devices, err = e.devices.FindByUserAndActivation(ctx, appID, msg.UserID, msg.ActivationID)
			if err == nil && len(devices) == 0 {
				return nil, fmt.Errorf("activation %s for user %s: %w", msg.ActivationID, msg.UserID, ErrNoTargetDevices)
			}
		} else {
			devices, err = e.devices.FindByUser(ctx, appID, msg.UserID)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve devices for user %s: %w", msg.UserID, err)
		}

		for _, device := range devices {
			units = append(units, unit{msg: msg, device: device})
		}
	}
	return units, nil
}

// complete maps one provider outcome onto counters, the message record
// and, for a dead token, the registration row. It runs concurrently with
// other completions and with the caller's barrier wait.
func (e *Engine) complete(ctx context.Context, u *unit, res push.Result, t *tally) {
	if res.Err != nil {
		e.logger.Debug("provider send did not succeed",
			"registration_id", u.device.ID, "outcome", res.Outcome.String(), "err", res.Err)
	}

	switch res.Outcome {
	case push.OutcomeSent:
		t.sent.Add(1)
		e.finishRecord(ctx, u.recordID, storage.StatusSent)
	case push.OutcomePending:
		t.pending.Add(1)
		// the record is already PENDING
	case push.OutcomeFailed:
		t.failed.Add(1)
		e.finishRecord(ctx, u.recordID, storage.StatusFailed)
	case push.OutcomeFailedDelete:
		t.failed.Add(1)
		e.finishRecord(ctx, u.recordID, storage.StatusFailed)
		if err := e.devices.Delete(ctx, &u.device); err != nil {
			e.logger.Error("failed to delete dead registration",
				"registration_id", u.device.ID, "err", err)
		} else {
			e.logger.Info("registration deleted after terminal provider failure",
				"registration_id", u.device.ID, "platform", u.device.Platform)
		}
	}
}

func (e *Engine) createRecord(ctx context.Context, appID string, u *unit) string {
	if e.records == nil {
		return ""
	}
	payload, _ := json.Marshal(u.msg)
	rec := &storage.PushMessageRecord{
		ID:             uuid.NewString(),
		AppID:          appID,
		RegistrationID: u.device.ID,
		UserID:         u.msg.UserID,
		Platform:       u.device.Platform,
		Status:         storage.StatusPending,
		Payload:        payload,
	}
	if err := e.records.Create(ctx, rec); err != nil {
		e.logger.Warn("failed to persist message record", "registration_id", u.device.ID, "err", err)
		return ""
	}
	return rec.ID
}

func (e *Engine) finishRecord(ctx context.Context, recordID string, status storage.MessageStatus) {
	if e.records == nil || recordID == "" {
		return
	}
	if err := e.records.UpdateStatus(ctx, recordID, status); err != nil {
		e.logger.Warn("failed to update message record", "record_id", recordID, "err", err)
	}
}

// snapshot freezes the tallies into the returned aggregate. When the
// barrier timed out, sends whose completions never arrived are counted
// PENDING: their fate is unknown and a later retry pass owns them.
func snapshot(tallies map[push.Platform]*tally, timedOut bool) *push.BatchResult {
	out := &push.BatchResult{Platforms: make(map[push.Platform]push.Counters, len(tallies))}
	for platform, t := range tallies {
		c := push.Counters{
			Sent:    int(t.sent.Load()),
			Pending: int(t.pending.Load()),
			Failed:  int(t.failed.Load()),
			Total:   int(t.total.Load()),
		}
		if timedOut {
			if missing := c.Total - c.Sent - c.Pending - c.Failed; missing > 0 {
				c.Pending += missing
			}
		}
		out.Platforms[platform] = c
	}
	return out
}
