package runner

import "github.com/bombadil/exerciser/pkg/types"

// EdgeMap accumulates the global max-bucket seen per edge index across
// an entire run (spec.md §4.5: "accumulate state.coverage into global
// edge-max map"). It is owned exclusively by the runner task.
type EdgeMap struct {
	maxBucket map[uint32]uint8
}

// NewEdgeMap builds an empty accumulator.
func NewEdgeMap() *EdgeMap {
	return &EdgeMap{maxBucket: make(map[uint32]uint8)}
}

// Accumulate folds a snapshot's coverage delta in, keeping the
// highest bucket ever observed for each edge index. Returns the
// number of edges whose recorded max actually increased.
func (m *EdgeMap) Accumulate(delta types.CoverageDelta) (newEdges int) {
	for _, eb := range delta {
		if cur, ok := m.maxBucket[eb.Index]; !ok || eb.Bucket > cur {
			m.maxBucket[eb.Index] = eb.Bucket
			newEdges++
		}
	}
	return newEdges
}

// Size reports how many distinct edges have ever been hit.
func (m *EdgeMap) Size() int { return len(m.maxBucket) }

// Snapshot returns a copy of the current max-bucket map, safe for a
// caller to retain (e.g. for a trace dump).
func (m *EdgeMap) Snapshot() map[uint32]uint8 {
	out := make(map[uint32]uint8, len(m.maxBucket))
	for k, v := range m.maxBucket {
		out[k] = v
	}
	return out
}
