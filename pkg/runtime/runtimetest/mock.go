// Package runtimetest provides test doubles for runtime.Application.
package runtimetest

import (
	"github.com/stretchr/testify/mock"

	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Mock is a testify mock of runtime.Application.
type Mock struct {
	mock.Mock
}

func (m *Mock) Name() string {
	return m.Called().String(0)
}

func (m *Mock) Init() error {
	return m.Called().Error(0)
}

func (m *Mock) Start() error {
	return m.Called().Error(0)
}

func (m *Mock) Stop() error {
	return m.Called().Error(0)
}

func (m *Mock) OfferService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion) {
	m.Called(service, instance, major, minor)
}

func (m *Mock) StopOfferService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion) {
	m.Called(service, instance, major, minor)
}

func (m *Mock) OfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, typ wire.EventType) {
	m.Called(service, instance, event, eventgroups, typ)
}

func (m *Mock) StopOfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID) {
	m.Called(service, instance, event)
}

func (m *Mock) Notify(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, payload *runtime.Payload) {
	m.Called(service, instance, event, payload)
}

func (m *Mock) RequestService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion) {
	m.Called(service, instance, major, minor)
}

func (m *Mock) ReleaseService(service wire.ServiceID, instance wire.InstanceID) {
	m.Called(service, instance)
}

func (m *Mock) RequestEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, typ wire.EventType) {
	m.Called(service, instance, event, eventgroups, typ)
}

func (m *Mock) ReleaseEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID) {
	m.Called(service, instance, event)
}

func (m *Mock) Subscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID, major wire.MajorVersion) {
	m.Called(service, instance, eventgroup, major)
}

func (m *Mock) Unsubscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID) {
	m.Called(service, instance, eventgroup)
}

func (m *Mock) RegisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID, h runtime.MessageHandler) {
	m.Called(service, instance, method, h)
}

func (m *Mock) UnregisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID) {
	m.Called(service, instance, method)
}

func (m *Mock) RegisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID, h runtime.AvailabilityHandler) {
	m.Called(service, instance, h)
}

func (m *Mock) UnregisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID) {
	m.Called(service, instance)
}

// AllowAll registers permissive expectations for every method, with nil
// errors from the lifecycle calls.
func (m *Mock) AllowAll() {
	m.On("Name").Return("mock").Maybe()
	m.On("Init").Return(nil).Maybe()
	m.On("Start").Return(nil).Maybe()
	m.On("Stop").Return(nil).Maybe()
	m.On("OfferService", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("StopOfferService", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("OfferEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("StopOfferEvent", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RequestService", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("ReleaseService", mock.Anything, mock.Anything).Return().Maybe()
	m.On("RequestEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("ReleaseEvent", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Subscribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Unsubscribe", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RegisterMessageHandler", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("UnregisterMessageHandler", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RegisterAvailabilityHandler", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("UnregisterAvailabilityHandler", mock.Anything, mock.Anything).Return().Maybe()
}

var _ runtime.Application = (*Mock)(nil)
