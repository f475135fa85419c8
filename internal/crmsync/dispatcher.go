package crmsync

import (
	"context"

	"loancrm_backend/platform/logger"
)

// Sender delivers one payload synchronously. Satisfied by WebhookClient.
type Sender interface {
	Send(ctx context.Context, payload Payload) error
}

// Dispatcher hands a payload off for delivery without blocking the caller.
// Implementations decide the delivery vehicle: a background goroutine, a task
// queue, or nothing at all when no CRM is configured.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload Payload)
}

// AsyncDispatcher delivers payloads on a detached goroutine. Delivery
// failures are logged and dropped; the processing run that produced the
// payload has already committed its state.
type AsyncDispatcher struct {
	sender Sender
	log    *logger.Logger
}

func NewAsyncDispatcher(sender Sender, log *logger.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{sender: sender, log: log}
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, payload Payload) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := d.sender.Send(detached, payload); err != nil {
			d.log.DispatchError(payload.Trigger, payload.ApplicationID, err)
		}
	}()
}

// NoopDispatcher drops payloads. Used when no CRM webhook is configured.
type NoopDispatcher struct {
	log *logger.Logger
}

func NewNoopDispatcher(log *logger.Logger) *NoopDispatcher {
	return &NoopDispatcher{log: log}
}

func (d *NoopDispatcher) Dispatch(_ context.Context, payload Payload) {
	d.log.Debug("crm dispatch skipped, no webhook configured",
		"application_id", payload.ApplicationID,
		"trigger", payload.Trigger,
	)
}
