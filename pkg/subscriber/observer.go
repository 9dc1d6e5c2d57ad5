package subscriber

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// ErrEmptyPayload reports a notification without a value byte.
var ErrEmptyPayload = errors.New("malformed notification: empty payload")

// Observer logs availability changes and received notifications. It keeps
// no state.
type Observer struct {
	logger *slog.Logger
}

// NewObserver creates an observer logging to logger (default:
// slog.Default()).
func NewObserver(logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{logger: logger}
}

// OnAvailability is a runtime.AvailabilityHandler.
func (o *Observer) OnAvailability(service wire.ServiceID, instance wire.InstanceID, available bool) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	status := "available"
	if !available {
		status = "NOT available"
	}
	o.logger.Info(fmt.Sprintf("Service [%s] is %s.", key, status))
}

// OnMessage is a runtime.MessageHandler. It logs the first payload byte.
func (o *Observer) OnMessage(msg *runtime.Message) {
	value, err := firstByte(msg)
	if err != nil {
		o.logger.Warn("dropping notification", "service", msg.Key().String(), "error", err)
		return
	}
	o.logger.Info("Received notification.",
		"service", msg.Key().String(),
		"event", fmt.Sprintf("%04x", uint16(msg.Method)),
		"value", value,
	)
}

func firstByte(msg *runtime.Message) (uint8, error) {
	if msg.Payload.Len() == 0 {
		return 0, ErrEmptyPayload
	}
	return msg.Payload.Data()[0], nil
}
