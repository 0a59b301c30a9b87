// Package snapshot maintains a bounded per-node history of recent execution
// snapshots for inspection views
package snapshot

import (
	"slices"
	"sync"

	"github.com/flowlens/flowlens/pkg/api"
)

// Store holds up to maxHistory snapshots per node, newest first. It is
// mutated only by the frame lifecycle manager; every other component reads
type Store struct {
	histories  map[api.NodeID][]*api.NodeExecutionSnapshot
	maxHistory int
	mu         sync.RWMutex
}

// DefaultMaxHistory is the per-node snapshot ring size
const DefaultMaxHistory = 50

// NewStore creates a snapshot store with the given per-node history bound.
// A non-positive bound falls back to DefaultMaxHistory
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		histories:  map[api.NodeID][]*api.NodeExecutionSnapshot{},
		maxHistory: maxHistory,
	}
}

// Upsert records a snapshot for its node. An existing entry for the same
// node/frame pair is replaced; otherwise the snapshot is prepended and the
// oldest entries beyond the history bound are silently dropped
func (s *Store) Upsert(snap *api.NodeExecutionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.histories[snap.NodeID]
	history = slices.DeleteFunc(history,
		func(e *api.NodeExecutionSnapshot) bool {
			return e.FrameID == snap.FrameID
		})

	history = append([]*api.NodeExecutionSnapshot{snap}, history...)
	if len(history) > s.maxHistory {
		history = history[:s.maxHistory]
	}
	s.histories[snap.NodeID] = history
}

// Query returns the snapshot recorded for a node within a frame, or the
// most recent snapshot when frameID is empty
func (s *Store) Query(
	nodeID api.NodeID, frameID api.FrameID,
) (*api.NodeExecutionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.histories[nodeID]
	if len(history) == 0 {
		return nil, false
	}
	if frameID == "" {
		return history[0], true
	}
	for _, snap := range history {
		if snap.FrameID == frameID {
			return snap, true
		}
	}
	return nil, false
}

// History returns a copy of a node's snapshot list, newest first
func (s *Store) History(nodeID api.NodeID) []*api.NodeExecutionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.histories[nodeID])
}

// Nodes returns the IDs of all nodes with recorded snapshots
func (s *Store) Nodes() []api.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]api.NodeID, 0, len(s.histories))
	for id := range s.histories {
		res = append(res, id)
	}
	return res
}

// Clear drops all recorded snapshots
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = map[api.NodeID][]*api.NodeExecutionSnapshot{}
}
