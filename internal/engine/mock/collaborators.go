package mock

import (
	context "context"
	reflect "reflect"

	engine "timed_auction/internal/engine"
	queue "timed_auction/internal/queue"

	gomock "go.uber.org/mock/gomock"
)

// MockPaymentGate is a mock of PaymentGate interface.
type MockPaymentGate struct {
	ctrl     *gomock.Controller
	recorder *MockPaymentGateMockRecorder
	isgomock struct{}
}

// MockPaymentGateMockRecorder is the mock recorder for MockPaymentGate.
type MockPaymentGateMockRecorder struct {
	mock *MockPaymentGate
}

// NewMockPaymentGate creates a new mock instance.
func NewMockPaymentGate(ctrl *gomock.Controller) *MockPaymentGate {
	mock := &MockPaymentGate{ctrl: ctrl}
	mock.recorder = &MockPaymentGateMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockPaymentGate) EXPECT() *MockPaymentGateMockRecorder {
	return m.recorder
}

// HasPaymentMethod mocks base method.
func (m *MockPaymentGate) HasPaymentMethod(ctx context.Context, userID int64) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "HasPaymentMethod", ctx, userID)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// HasPaymentMethod indicates an expected call of HasPaymentMethod.
func (mr *MockPaymentGateMockRecorder) HasPaymentMethod(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "HasPaymentMethod", reflect.TypeOf((*MockPaymentGate)(nil).HasPaymentMethod), ctx, userID)
}

// MockPublisher is a mock of Publisher interface.
type MockPublisher struct {
	ctrl     *gomock.Controller
	recorder *MockPublisherMockRecorder
	isgomock struct{}
}

// MockPublisherMockRecorder is the mock recorder for MockPublisher.
type MockPublisherMockRecorder struct {
	mock *MockPublisher
}

// NewMockPublisher creates a new mock instance.
func NewMockPublisher(ctrl *gomock.Controller) *MockPublisher {
	mock := &MockPublisher{ctrl: ctrl}
	mock.recorder = &MockPublisherMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockPublisher) EXPECT() *MockPublisherMockRecorder {
	return m.recorder
}

// Publish mocks base method.
func (m *MockPublisher) Publish(ctx context.Context, e queue.Event) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Publish", ctx, e)
	ret0, _ := ret[0].(error)
	return ret0
}

// Publish indicates an expected call of Publish.
func (mr *MockPublisherMockRecorder) Publish(ctx, e any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Publish", reflect.TypeOf((*MockPublisher)(nil).Publish), ctx, e)
}

// MockCharges is a mock of Charges interface.
type MockCharges struct {
	ctrl     *gomock.Controller
	recorder *MockChargesMockRecorder
	isgomock struct{}
}

// MockChargesMockRecorder is the mock recorder for MockCharges.
type MockChargesMockRecorder struct {
	mock *MockCharges
}

// NewMockCharges creates a new mock instance.
func NewMockCharges(ctrl *gomock.Controller) *MockCharges {
	mock := &MockCharges{ctrl: ctrl}
	mock.recorder = &MockChargesMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockCharges) EXPECT() *MockChargesMockRecorder {
	return m.recorder
}

// Quote mocks base method.
func (m *MockCharges) Quote(ctx context.Context, q engine.ChargeQuote) (int64, int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Quote", ctx, q)
	ret0, _ := ret[0].(int64)
	ret1, _ := ret[1].(int64)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

// Quote indicates an expected call of Quote.
func (mr *MockChargesMockRecorder) Quote(ctx, q any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Quote", reflect.TypeOf((*MockCharges)(nil).Quote), ctx, q)
}
