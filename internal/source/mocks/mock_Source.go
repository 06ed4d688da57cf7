// Package mocks provides test doubles for the source adapters.
package mocks

import (
	"context"

	model "github.com/sells-group/qda-harvester/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockSource is a mock type for the Source interface.
type MockSource struct {
	mock.Mock
}

// Label provides a mock function with no fields
func (_m *MockSource) Label() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Label")
	}

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Search provides a mock function with given fields: ctx, query, fileType
func (_m *MockSource) Search(ctx context.Context, query string, fileType string) ([]model.DatasetHit, error) {
	ret := _m.Called(ctx, query, fileType)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []model.DatasetHit
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) ([]model.DatasetHit, error)); ok {
		return rf(ctx, query, fileType)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) []model.DatasetHit); ok {
		r0 = rf(ctx, query, fileType)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.DatasetHit)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, query, fileType)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// FetchMetadata provides a mock function with given fields: ctx, sourceURL
func (_m *MockSource) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	ret := _m.Called(ctx, sourceURL)

	if len(ret) == 0 {
		panic("no return value specified for FetchMetadata")
	}

	var r0 *model.DatasetMetadata
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.DatasetMetadata, error)); ok {
		return rf(ctx, sourceURL)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *model.DatasetMetadata); ok {
		r0 = rf(ctx, sourceURL)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.DatasetMetadata)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, sourceURL)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// PullFile provides a mock function with given fields: ctx, rawURL, dir, filename
func (_m *MockSource) PullFile(ctx context.Context, rawURL string, dir string, filename string) (string, error) {
	ret := _m.Called(ctx, rawURL, dir, filename)

	if len(ret) == 0 {
		panic("no return value specified for PullFile")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) (string, error)); ok {
		return rf(ctx, rawURL, dir, filename)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) string); ok {
		r0 = rf(ctx, rawURL, dir, filename)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string, string) error); ok {
		r1 = rf(ctx, rawURL, dir, filename)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockSource creates a new instance of MockSource.
func NewMockSource(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSource {
	mock := &MockSource{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
