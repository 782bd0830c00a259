package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalAdapter routes Temporal SDK logs through zerolog so worker and
// client output share the process-wide log stream.
type TemporalAdapter struct {
	logger zerolog.Logger
}

func NewTemporalAdapter(logger zerolog.Logger) log.Logger {
	return &TemporalAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

// fields converts the SDK's alternating key/value slice into zerolog fields.
// Odd trailing values and non-string keys are kept rather than dropped.
func fields(event *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 < len(keyvals) {
			event = event.Interface(key, keyvals[i+1])
		} else {
			event = event.Interface(key, "(missing)")
		}
	}
	return event
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	fields(a.logger.Debug(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	fields(a.logger.Info(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	fields(a.logger.Warn(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	fields(a.logger.Error(), keyvals).Msg(msg)
}
