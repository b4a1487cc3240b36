// Package mediamock is a hand-maintained mockgen-style double for
// core.MediaWorker, used by the routing and signaling package tests so
// they can exercise policy logic without a real pion/webrtc engine.
package mediamock

import (
	"reflect"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

var _ core.MediaWorker = (*MockMediaWorker)(nil)

// MockMediaWorker mocks core.MediaWorker.
type MockMediaWorker struct {
	ctrl     *gomock.Controller
	recorder *MockMediaWorkerMockRecorder
}

type MockMediaWorkerMockRecorder struct {
	mock *MockMediaWorker
}

func NewMockMediaWorker(ctrl *gomock.Controller) *MockMediaWorker {
	m := &MockMediaWorker{ctrl: ctrl}
	m.recorder = &MockMediaWorkerMockRecorder{m}
	return m
}

func (m *MockMediaWorker) EXPECT() *MockMediaWorkerMockRecorder {
	return m.recorder
}

func (m *MockMediaWorker) RTPCapabilities() core.Capabilities {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RTPCapabilities")
	ret0, _ := ret[0].(core.Capabilities)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) RTPCapabilities() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RTPCapabilities", reflect.TypeOf((*MockMediaWorker)(nil).RTPCapabilities))
}

func (m *MockMediaWorker) CreateTransport(sid core.SessionID, dir core.TransportDirection) (*core.TransportParams, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CreateTransport", sid, dir)
	ret0, _ := ret[0].(*core.TransportParams)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockMediaWorkerMockRecorder) CreateTransport(sid, dir interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CreateTransport", reflect.TypeOf((*MockMediaWorker)(nil).CreateTransport), sid, dir)
}

func (m *MockMediaWorker) ConnectTransport(id domain.TransportID, offerSDP string) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ConnectTransport", id, offerSDP)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockMediaWorkerMockRecorder) ConnectTransport(id, offerSDP interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ConnectTransport", reflect.TypeOf((*MockMediaWorker)(nil).ConnectTransport), id, offerSDP)
}

func (m *MockMediaWorker) Produce(transportID domain.TransportID, appData core.ProducerAppData) (domain.ProducerID, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Produce", transportID, appData)
	ret0, _ := ret[0].(domain.ProducerID)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockMediaWorkerMockRecorder) Produce(transportID, appData interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Produce", reflect.TypeOf((*MockMediaWorker)(nil).Produce), transportID, appData)
}

func (m *MockMediaWorker) CanConsume(producerID domain.ProducerID) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CanConsume", producerID)
	ret0, _ := ret[0].(bool)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) CanConsume(producerID interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CanConsume", reflect.TypeOf((*MockMediaWorker)(nil).CanConsume), producerID)
}

func (m *MockMediaWorker) Consume(transportID domain.TransportID, producerID domain.ProducerID, startPaused bool) (*core.ConsumeResult, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Consume", transportID, producerID, startPaused)
	ret0, _ := ret[0].(*core.ConsumeResult)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockMediaWorkerMockRecorder) Consume(transportID, producerID, startPaused interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Consume", reflect.TypeOf((*MockMediaWorker)(nil).Consume), transportID, producerID, startPaused)
}

func (m *MockMediaWorker) ApplyConsumerAnswer(consumerID domain.ConsumerID, answerSDP string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ApplyConsumerAnswer", consumerID, answerSDP)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) ApplyConsumerAnswer(consumerID, answerSDP interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ApplyConsumerAnswer", reflect.TypeOf((*MockMediaWorker)(nil).ApplyConsumerAnswer), consumerID, answerSDP)
}

func (m *MockMediaWorker) PauseProducer(id domain.ProducerID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "PauseProducer", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) PauseProducer(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PauseProducer", reflect.TypeOf((*MockMediaWorker)(nil).PauseProducer), id)
}

func (m *MockMediaWorker) ResumeProducer(id domain.ProducerID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ResumeProducer", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) ResumeProducer(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ResumeProducer", reflect.TypeOf((*MockMediaWorker)(nil).ResumeProducer), id)
}

func (m *MockMediaWorker) PauseConsumer(id domain.ConsumerID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "PauseConsumer", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) PauseConsumer(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PauseConsumer", reflect.TypeOf((*MockMediaWorker)(nil).PauseConsumer), id)
}

func (m *MockMediaWorker) ResumeConsumer(id domain.ConsumerID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ResumeConsumer", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) ResumeConsumer(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ResumeConsumer", reflect.TypeOf((*MockMediaWorker)(nil).ResumeConsumer), id)
}

func (m *MockMediaWorker) CloseProducer(id domain.ProducerID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CloseProducer", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) CloseProducer(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CloseProducer", reflect.TypeOf((*MockMediaWorker)(nil).CloseProducer), id)
}

func (m *MockMediaWorker) CloseConsumer(id domain.ConsumerID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CloseConsumer", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) CloseConsumer(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CloseConsumer", reflect.TypeOf((*MockMediaWorker)(nil).CloseConsumer), id)
}

func (m *MockMediaWorker) CloseTransport(id domain.TransportID) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CloseTransport", id)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) CloseTransport(id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CloseTransport", reflect.TypeOf((*MockMediaWorker)(nil).CloseTransport), id)
}

func (m *MockMediaWorker) CloseSession(sid core.SessionID) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "CloseSession", sid)
}

func (mr *MockMediaWorkerMockRecorder) CloseSession(sid interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CloseSession", reflect.TypeOf((*MockMediaWorker)(nil).CloseSession), sid)
}

func (m *MockMediaWorker) Events() <-chan core.MediaEvent {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Events")
	ret0, _ := ret[0].(<-chan core.MediaEvent)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) Events() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Events", reflect.TypeOf((*MockMediaWorker)(nil).Events))
}

func (m *MockMediaWorker) ObserveSpeaking(threshold float64, interval time.Duration) <-chan core.SpeakingEvent {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ObserveSpeaking", threshold, interval)
	ret0, _ := ret[0].(<-chan core.SpeakingEvent)
	return ret0
}

func (mr *MockMediaWorkerMockRecorder) ObserveSpeaking(threshold, interval interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ObserveSpeaking", reflect.TypeOf((*MockMediaWorker)(nil).ObserveSpeaking), threshold, interval)
}

func (m *MockMediaWorker) Close() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Close")
}

func (mr *MockMediaWorkerMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockMediaWorker)(nil).Close))
}
