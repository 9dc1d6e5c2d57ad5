package runtime

import (
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// logMessage records a decoded message at the wire layer.
func (a *App) logMessage(dir log.Direction, role log.Role, connID, remote string, msg *wire.Message) {
	if a.cfg.ProtocolLogger == nil {
		return
	}
	var service string
	if msg.Type != wire.TypeOffer && msg.Type != wire.TypeStopOffer {
		service = msg.Key().String()
	}
	a.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    role,
		RemoteAddr:   remote,
		Service:      service,
		Message:      log.NewMessageEvent(msg),
	})
}

// logState records an availability or subscription transition at the
// service layer.
func (a *App) logState(role log.Role, entity log.StateEntity, service, oldState, newState, reason string) {
	if a.cfg.ProtocolLogger == nil {
		return
	}
	a.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		LocalRole: role,
		Service:   service,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// logError records a failed operation at the service layer.
func (a *App) logError(role log.Role, service, context string, err error) {
	if a.cfg.ProtocolLogger == nil {
		return
	}
	a.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryError,
		LocalRole: role,
		Service:   service,
		Error: &log.ErrorEventData{
			Layer:   log.LayerService,
			Message: err.Error(),
			Context: context,
		},
	})
}
