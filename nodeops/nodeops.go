// Package nodeops provides thin lifecycle operations over the control-plane
// client: list, inspect, delete and usage statistics. Node state is never
// cached locally; every operation starts from a fresh fetch.
package nodeops

import (
	"context"
	"log/slog"
	"sort"

	"github.com/relayops/node-provisioner/geoip"
	"github.com/relayops/node-provisioner/interfaces"
)

// Service exposes node lifecycle operations to front-ends.
type Service struct {
	controlPlane interfaces.ControlPlane
	geo          interfaces.GeoResolver
	log          *slog.Logger
}

// NewService creates a node operations service.
func NewService(controlPlane interfaces.ControlPlane, geo interfaces.GeoResolver, log *slog.Logger) *Service {
	return &Service{controlPlane: controlPlane, geo: geo, log: log}
}

// List returns the current node list from the control plane.
func (s *Service) List(ctx context.Context) ([]interfaces.NodeRecord, error) {
	return s.controlPlane.ListNodes(ctx)
}

// Inspect re-fetches the node list and returns the node with the given id.
// There is no single-node fetch endpoint; a fresh list lookup also handles
// nodes deleted concurrently by other operators, which surface as
// ErrNodeNotFound.
func (s *Service) Inspect(ctx context.Context, id int64) (interfaces.NodeRecord, error) {
	nodes, err := s.controlPlane.ListNodes(ctx)
	if err != nil {
		return interfaces.NodeRecord{}, err
	}

	for _, node := range nodes {
		if node.ID == id {
			return node, nil
		}
	}
	return interfaces.NodeRecord{}, interfaces.ErrNodeNotFound
}

// Delete removes the node with the given id and returns the deleted node's
// record, so callers can report its name and address rather than a bare id.
// The identity is fetched fresh before deletion; a stale id yields
// ErrNodeNotFound instead of a failed delete.
func (s *Service) Delete(ctx context.Context, id int64) (interfaces.NodeRecord, error) {
	node, err := s.Inspect(ctx, id)
	if err != nil {
		return interfaces.NodeRecord{}, err
	}

	if err := s.controlPlane.DeleteNode(ctx, id); err != nil {
		return interfaces.NodeRecord{}, err
	}

	s.log.Info("Node deleted", "action", "node_delete_completed", "node", node.ID,
		"name", node.Name, "address", node.Address)
	return node, nil
}

// CountryCount is the number of nodes resolved to one country.
type CountryCount struct {
	Country string `json:"country"`
	Nodes   int    `json:"nodes"`
}

// Stats summarizes the current node fleet.
type Stats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Inactive  int            `json:"inactive"`
	Countries []CountryCount `json:"countries"`
}

// Stats computes fleet statistics from a fresh node list, resolving each
// node's address to a country. Unresolvable addresses are grouped under
// "Unknown".
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	nodes, err := s.controlPlane.ListNodes(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(nodes)}
	counts := make(map[string]int)
	for _, node := range nodes {
		if node.IsActive() {
			stats.Active++
		} else {
			stats.Inactive++
		}
		counts[geoip.Country(s.geo.Locate(ctx, node.Address))]++
	}

	for country, n := range counts {
		stats.Countries = append(stats.Countries, CountryCount{Country: country, Nodes: n})
	}
	sort.Slice(stats.Countries, func(i, j int) bool {
		if stats.Countries[i].Nodes != stats.Countries[j].Nodes {
			return stats.Countries[i].Nodes > stats.Countries[j].Nodes
		}
		return stats.Countries[i].Country < stats.Countries[j].Country
	})

	return stats, nil
}
