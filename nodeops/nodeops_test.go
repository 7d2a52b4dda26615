package nodeops

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relayops/node-provisioner/controlplane"
	"github.com/relayops/node-provisioner/interfaces"
)

type mapGeo struct {
	labels map[string]string
}

func (g *mapGeo) Locate(_ context.Context, ip string) string {
	if label, ok := g.labels[ip]; ok {
		return label
	}
	return "Ghost"
}

var fleet = []interfaces.NodeRecord{
	{ID: 1, Name: "Berlin (Germany)", Address: "203.0.113.5", Port: 8443, APIPort: 8880, Status: interfaces.NodeStatusActive},
	{ID: 2, Name: "Paris (France)", Address: "203.0.113.6", Port: 8443, APIPort: 8880, Status: interfaces.NodeStatusActive},
	{ID: 3, Name: "Munich (Germany)", Address: "203.0.113.7", Port: 9443, APIPort: 9880, Status: interfaces.NodeStatusInactive},
}

func newTestService(cp *controlplane.MockControlPlane, geo interfaces.GeoResolver) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if geo == nil {
		geo = &mapGeo{}
	}
	return NewService(cp, geo, log)
}

func TestInspectFindsNodeByID(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return(fleet, nil)

	svc := newTestService(cp, nil)
	node, err := svc.Inspect(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Paris (France)", node.Name)
	assert.Equal(t, "203.0.113.6", node.Address)
}

func TestInspectUnknownID(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return(fleet, nil)

	svc := newTestService(cp, nil)
	_, err := svc.Inspect(context.Background(), 99)
	assert.ErrorIs(t, err, interfaces.ErrNodeNotFound)
}

func TestDeleteReturnsDeletedRecord(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return(fleet, nil)
	cp.On("DeleteNode", mock.Anything, int64(3)).Return(nil)

	svc := newTestService(cp, nil)
	node, err := svc.Delete(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Munich (Germany)", node.Name)
	cp.AssertExpectations(t)
}

func TestDeleteStaleIDSkipsDelete(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return(fleet, nil)

	svc := newTestService(cp, nil)
	_, err := svc.Delete(context.Background(), 99)
	assert.ErrorIs(t, err, interfaces.ErrNodeNotFound)
	cp.AssertNotCalled(t, "DeleteNode", mock.Anything, mock.Anything)
}

func TestStatsCountsAndCountries(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return(fleet, nil)

	geo := &mapGeo{labels: map[string]string{
		"203.0.113.5": "Berlin (Germany)",
		"203.0.113.6": "Paris (France)",
		"203.0.113.7": "Munich (Germany)",
	}}

	svc := newTestService(cp, geo)
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
	require.Equal(t, []CountryCount{
		{Country: "Germany", Nodes: 2},
		{Country: "France", Nodes: 1},
	}, stats.Countries)
}

func TestStatsUnresolvableGroupedAsUnknown(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return(fleet[:1], nil)

	svc := newTestService(cp, &mapGeo{})
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Countries, 1)
	assert.Equal(t, "Unknown", stats.Countries[0].Country)
}

func TestStatsListFailurePropagates(t *testing.T) {
	cp := &controlplane.MockControlPlane{}
	cp.On("ListNodes", mock.Anything).Return([]interfaces.NodeRecord(nil),
		&interfaces.APIError{StatusCode: 503, Body: "upstream down"})

	svc := newTestService(cp, nil)
	_, err := svc.Stats(context.Background())
	var apiErr *interfaces.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
}
