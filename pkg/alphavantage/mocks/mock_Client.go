// Package mocks provides test doubles for the alphavantage client.
package mocks

import (
	"context"

	alphavantage "github.com/sells-group/research-dashboard/pkg/alphavantage"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SymbolSearch provides a mock function with given fields: ctx, keywords
func (_m *MockClient) SymbolSearch(ctx context.Context, keywords string) ([]alphavantage.Match, error) {
	ret := _m.Called(ctx, keywords)

	if len(ret) == 0 {
		panic("no return value specified for SymbolSearch")
	}

	var r0 []alphavantage.Match
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]alphavantage.Match)
	}
	return r0, ret.Error(1)
}

// Overview provides a mock function with given fields: ctx, symbol
func (_m *MockClient) Overview(ctx context.Context, symbol string) (*alphavantage.Overview, error) {
	ret := _m.Called(ctx, symbol)

	if len(ret) == 0 {
		panic("no return value specified for Overview")
	}

	var r0 *alphavantage.Overview
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*alphavantage.Overview)
	}
	return r0, ret.Error(1)
}

// IncomeStatement provides a mock function with given fields: ctx, symbol
func (_m *MockClient) IncomeStatement(ctx context.Context, symbol string) (*alphavantage.IncomeStatement, error) {
	ret := _m.Called(ctx, symbol)

	if len(ret) == 0 {
		panic("no return value specified for IncomeStatement")
	}

	var r0 *alphavantage.IncomeStatement
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*alphavantage.IncomeStatement)
	}
	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
