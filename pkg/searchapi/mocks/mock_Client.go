// Package mocks provides test doubles for the searchapi client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	searchapi "github.com/sells-group/offer-sourcing/pkg/searchapi"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Shopping provides a mock function with given fields: ctx, req
func (_m *MockClient) Shopping(ctx context.Context, req searchapi.ShoppingRequest) (*searchapi.ShoppingResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Shopping")
	}

	var r0 *searchapi.ShoppingResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, searchapi.ShoppingRequest) (*searchapi.ShoppingResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*searchapi.ShoppingResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient and registers cleanup
// that asserts expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
