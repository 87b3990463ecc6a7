package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexuslake/hooks"
)

// CorruptFileAlerterListener logs an error whenever a rebuild finds interior
// damage in a log file, whether the file was skipped or the rebuild aborted.
type CorruptFileAlerterListener struct {
	logger *slog.Logger
}

// NewCorruptFileAlerterListener creates a listener for OnCorruptFile events.
func NewCorruptFileAlerterListener(logger *slog.Logger) *CorruptFileAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CorruptFileAlerterListener{
		logger: logger.With("component", "CorruptFileAlerterListener"),
	}
}

// OnEvent handles the OnCorruptFile event.
func (l *CorruptFileAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnCorruptFile {
		return nil
	}

	payload, ok := event.Payload().(hooks.CorruptFilePayload)
	if !ok {
		l.logger.Error("Received OnCorruptFile event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	l.logger.Error("Corrupt log file detected",
		"file_id", payload.FileID,
		"offset", payload.Offset,
		"skipped", payload.Skipped,
		"error", payload.Error,
	)
	return nil
}

func (l *CorruptFileAlerterListener) Priority() int { return 100 }

func (l *CorruptFileAlerterListener) IsAsync() bool { return true }
