// Package mocks provides test doubles for the rainforest client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	rainforest "github.com/sells-group/offer-sourcing/pkg/rainforest"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, req
func (_m *MockClient) Search(ctx context.Context, req rainforest.SearchRequest) (*rainforest.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *rainforest.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, rainforest.SearchRequest) (*rainforest.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*rainforest.SearchResponse)
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
