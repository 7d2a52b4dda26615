package controlplane

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/relayops/node-provisioner/interfaces"
)

// MockControlPlane is a testify mock of the interfaces.ControlPlane contract
// for tests that exercise the workflow and node operations without a live
// control plane.
type MockControlPlane struct {
	mock.Mock
}

func (m *MockControlPlane) ListNodes(ctx context.Context) ([]interfaces.NodeRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.NodeRecord), args.Error(1)
}

func (m *MockControlPlane) CreateNode(ctx context.Context, req interfaces.CreateNodeRequest) (interfaces.NodeRecord, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(interfaces.NodeRecord), args.Error(1)
}

func (m *MockControlPlane) DeleteNode(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
