package authcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/tunehub/authcore/internal/audit"
	"github.com/tunehub/authcore/internal/requestctx"
)

// AuditEvent is a security-relevant action reported to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// Audit event types.
const (
	AuditRegister        = audit.TypeRegister
	AuditLogin           = audit.TypeLogin
	AuditLoginBanned     = audit.TypeLoginBanned
	AuditLogout          = audit.TypeLogout
	AuditRenewal         = audit.TypeRenewal
	AuditRenewalRejected = audit.TypeRenewalRejected
	AuditSessionsCleared = audit.TypeSessionsCleared
)

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that buffers events in a channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewZapSink returns a sink that logs events through logger.
func NewZapSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP, _ = requestctx.ClientIP(ctx)
	}
	e.audit.Emit(ctx, event)
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}
