package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/INLOpen/nexuslake/hooks"
)

// KeyCreateLoggerListener counts newly indexed keys and logs every one of
// them at debug level. A warning is logged each time the count crosses a
// multiple of WarnEvery, which helps spot runaway key growth.
type KeyCreateLoggerListener struct {
	logger    *slog.Logger
	warnEvery int64
	created   atomic.Int64
}

// NewKeyCreateLoggerListener creates the listener. warnEvery <= 0 disables
// the warnings.
func NewKeyCreateLoggerListener(logger *slog.Logger, warnEvery int64) *KeyCreateLoggerListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &KeyCreateLoggerListener{
		logger:    logger.With("component", "KeyCreateLoggerListener"),
		warnEvery: warnEvery,
	}
}

// OnEvent handles the OnKeyCreate event.
func (l *KeyCreateLoggerListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnKeyCreate {
		return nil
	}
	payload, ok := event.Payload().(hooks.KeyCreatePayload)
	if !ok {
		l.logger.Error("Received OnKeyCreate event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	n := l.created.Add(1)
	l.logger.Debug("New key indexed", "key", fmt.Sprint(payload.Key), "location", payload.Location.String())
	if l.warnEvery > 0 && n%l.warnEvery == 0 {
		l.logger.Warn("Indexed key count milestone reached", "keys_created", n)
	}
	return nil
}

// Created returns the number of OnKeyCreate events seen.
func (l *KeyCreateLoggerListener) Created() int64 { return l.created.Load() }

func (l *KeyCreateLoggerListener) Priority() int { return 100 }

func (l *KeyCreateLoggerListener) IsAsync() bool { return false }
