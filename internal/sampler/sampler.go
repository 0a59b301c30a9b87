// Package sampler implements the producer side of the observability
// pipeline: deciding which node executions emit telemetry, masking
// sensitive fields, and building bounded payload previews
package sampler

import (
	"math/rand/v2"
	"sync"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/pkg/api"
)

type (
	// Execution carries the facts the sampling decision is based on
	Execution struct {
		Failed bool
		Debug  bool
	}

	// Sampler decides per node execution whether telemetry is captured
	Sampler struct {
		counts map[api.NodeID]int
		random func() float64
		cfg    config.SamplingConfig
		mu     sync.Mutex
	}
)

// New creates a sampler for the configured mode
func New(cfg config.SamplingConfig) *Sampler {
	return &Sampler{
		cfg:    cfg,
		counts: map[api.NodeID]int{},
		random: rand.Float64,
	}
}

// Sample reports whether this execution of the node should emit telemetry
func (s *Sampler) Sample(node api.NodeID, exec Execution) bool {
	switch s.cfg.Mode {
	case config.SamplingFirstN:
		return s.sampleFirstN(node)
	case config.SamplingErrorsOnly:
		return exec.Failed
	case config.SamplingProbabilistic:
		return s.random() < s.cfg.Probability
	case config.SamplingDebugOnly:
		return exec.Debug
	default:
		return false
	}
}

// Reset clears the per-node counters, restarting first-n capture. Called
// when a flow is redeployed
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = map[api.NodeID]int{}
}

func (s *Sampler) sampleFirstN(node api.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counts[node] >= s.cfg.MaxPerNode {
		return false
	}
	s.counts[node]++
	return true
}
