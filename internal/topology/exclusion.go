package topology

// Weights are the nonbonded scaling factors applied at topological distances
// 1-2, 1-3 and 1-4. The same factor scales dispersion and electrostatics.
type Weights [3]float64

// DefaultWeights excludes 1-2 and 1-3 pairs and keeps 1-4 pairs at full
// strength.
func DefaultWeights() Weights { return Weights{0, 0, 1} }

// Exclusions maps topologically close particle pairs to their scaling weight.
type Exclusions struct {
	w    Weights
	dist map[uint64]uint8
}

func pairKey(i, j int) uint64 {
	if i > j {
		i, j = j, i
	}
	return uint64(i)<<32 | uint64(uint32(j))
}

func buildExclusions(n int, bonds []Bond, w Weights) *Exclusions {
	adj := make([][]int, n)
	for _, b := range bonds {
		adj[b.I] = append(adj[b.I], b.J)
		adj[b.J] = append(adj[b.J], b.I)
	}

	e := &Exclusions{w: w, dist: make(map[uint64]uint8)}

	// Breadth-first walk to depth 3 from every particle. A pair keeps the
	// smallest topological distance found.
	depth := make([]int8, n)
	for i := 0; i < n; i++ {
		for k := range depth {
			depth[k] = -1
		}
		depth[i] = 0
		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if depth[cur] == 3 {
				continue
			}
			for _, nb := range adj[cur] {
				if depth[nb] >= 0 {
					continue
				}
				depth[nb] = depth[cur] + 1
				queue = append(queue, nb)
				if nb > i {
					key := pairKey(i, nb)
					d := uint8(depth[nb])
					if old, ok := e.dist[key]; !ok || d < old {
						e.dist[key] = d
					}
				}
			}
		}
	}
	return e
}

// Weight returns the nonbonded scaling factor for a particle pair: 1 for
// pairs beyond topological distance 3, the configured factor otherwise.
func (e *Exclusions) Weight(i, j int) float64 {
	if e == nil {
		return 1
	}
	if d, ok := e.dist[pairKey(i, j)]; ok {
		return e.w[d-1]
	}
	return 1
}

// Distance reports the topological distance of a pair (1, 2 or 3), or 0 when
// the pair is unrelated.
func (e *Exclusions) Distance(i, j int) int {
	if e == nil {
		return 0
	}
	return int(e.dist[pairKey(i, j)])
}

// Weights returns the configured scaling table.
func (e *Exclusions) Weights() Weights { return e.w }
