// Package neighbor builds and maintains the pairwise candidate list used by
// the force-field evaluator. Particles are binned into cells at least
// cutoff+skin wide; the list is rebuilt only when some particle has moved
// farther than skin/2 since the last build.
package neighbor

import (
	"fmt"
	"math"

	"github.com/otmiM/polymatic/internal/topology"
)

// Pair is one candidate interaction. W is the exclusion-policy weight;
// weight-zero pairs are kept in the list only when the evaluator needs them
// for long-range exclusion corrections.
type Pair struct {
	I, J int32
	W    float64
}

// LostAtomsError signals that two bonded particles drifted farther apart than
// twice the cutoff between rebuilds, which indicates numerical instability
// (typically an oversized timestep).
type LostAtomsError struct {
	I, J int
	Dist float64
}

func (e LostAtomsError) Error() string {
	return fmt.Sprintf("lost atoms: bonded pair (%d,%d) separated by %.3f", e.I, e.J, e.Dist)
}

type List struct {
	sys          *topology.System
	cutoff       float64
	skin         float64
	keepExcluded bool

	pairs []Pair
	last  []float64
	built bool

	// Rebuilds counts list constructions since creation.
	Rebuilds int
}

func NewList(sys *topology.System, cutoff, skin float64, keepExcluded bool) *List {
	return &List{
		sys:          sys,
		cutoff:       cutoff,
		skin:         skin,
		keepExcluded: keepExcluded,
		last:         make([]float64, 3*sys.N),
	}
}

func (l *List) Pairs() []Pair   { return l.pairs }
func (l *List) Cutoff() float64 { return l.cutoff }

// Ensure checks the rebuild criterion and rebuilds the list if necessary.
// It also runs the lost-atoms check against the bond list.
func (l *List) Ensure() (bool, error) {
	if err := l.checkLostAtoms(); err != nil {
		return false, err
	}
	if l.built && l.maxDisplacement() <= 0.5*l.skin {
		return false, nil
	}
	l.build()
	return true, nil
}

func (l *List) checkLostAtoms() error {
	sys := l.sys
	limit := 2 * l.cutoff
	for _, b := range sys.Bonds {
		dx, dy, dz := sys.Delta(b.I, b.J)
		r := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if r > limit {
			return LostAtomsError{I: b.I, J: b.J, Dist: r}
		}
	}
	return nil
}

func (l *List) maxDisplacement() float64 {
	sys := l.sys
	max2 := 0.0
	for i := 0; i < sys.N; i++ {
		dx := sys.Box.MinImage(sys.Pos[3*i]-l.last[3*i], 0)
		dy := sys.Box.MinImage(sys.Pos[3*i+1]-l.last[3*i+1], 1)
		dz := sys.Box.MinImage(sys.Pos[3*i+2]-l.last[3*i+2], 2)
		d2 := dx*dx + dy*dy + dz*dz
		if d2 > max2 {
			max2 = d2
		}
	}
	return math.Sqrt(max2)
}

func (l *List) build() {
	sys := l.sys
	reach := l.cutoff + l.skin
	l.pairs = l.pairs[:0]

	var ncell [3]int
	for k := 0; k < 3; k++ {
		ncell[k] = int(sys.Box.L[k] / reach)
	}
	if ncell[0] < 3 || ncell[1] < 3 || ncell[2] < 3 {
		l.buildAllPairs(reach)
	} else {
		l.buildCells(reach, ncell)
	}

	copy(l.last, sys.Pos)
	l.built = true
	l.Rebuilds++
}

func (l *List) add(i, j int, r2, reach2 float64) {
	if r2 > reach2 {
		return
	}
	w := l.sys.Excl.Weight(i, j)
	if w == 0 && !l.keepExcluded {
		return
	}
	l.pairs = append(l.pairs, Pair{I: int32(i), J: int32(j), W: w})
}

// buildAllPairs is the small-box fallback where cells would be narrower than
// the interaction reach.
func (l *List) buildAllPairs(reach float64) {
	sys := l.sys
	reach2 := reach * reach
	for i := 0; i < sys.N; i++ {
		for j := i + 1; j < sys.N; j++ {
			dx, dy, dz := sys.Delta(i, j)
			l.add(i, j, dx*dx+dy*dy+dz*dz, reach2)
		}
	}
}

// Half stencil: the 13 forward neighbor cells plus the cell itself.
var halfStencil = [13][3]int{
	{1, 0, 0},
	{-1, 1, 0}, {0, 1, 0}, {1, 1, 0},
	{-1, -1, 1}, {0, -1, 1}, {1, -1, 1},
	{-1, 0, 1}, {0, 0, 1}, {1, 0, 1},
	{-1, 1, 1}, {0, 1, 1}, {1, 1, 1},
}

func (l *List) buildCells(reach float64, ncell [3]int) {
	sys := l.sys
	reach2 := reach * reach
	ntot := ncell[0] * ncell[1] * ncell[2]

	head := make([]int, ntot)
	for i := range head {
		head[i] = -1
	}
	next := make([]int, sys.N)

	cellOf := func(i int) int {
		var c [3]int
		for k := 0; k < 3; k++ {
			p := sys.Pos[3*i+k] - sys.Box.Origin[k]
			p -= sys.Box.L[k] * math.Floor(p/sys.Box.L[k])
			c[k] = int(p / sys.Box.L[k] * float64(ncell[k]))
			if c[k] >= ncell[k] {
				c[k] = ncell[k] - 1
			}
		}
		return (c[2]*ncell[1]+c[1])*ncell[0] + c[0]
	}

	// Iterate in descending order so each linked list comes out ascending;
	// pair enumeration order is then deterministic.
	for i := sys.N - 1; i >= 0; i-- {
		c := cellOf(i)
		next[i] = head[c]
		head[c] = i
	}

	wrap := func(c, n int) int {
		if c < 0 {
			return c + n
		}
		if c >= n {
			return c - n
		}
		return c
	}

	for cz := 0; cz < ncell[2]; cz++ {
		for cy := 0; cy < ncell[1]; cy++ {
			for cx := 0; cx < ncell[0]; cx++ {
				c := (cz*ncell[1]+cy)*ncell[0] + cx

				// Pairs within the cell.
				for i := head[c]; i >= 0; i = next[i] {
					for j := next[i]; j >= 0; j = next[j] {
						dx, dy, dz := sys.Delta(i, j)
						l.add(i, j, dx*dx+dy*dy+dz*dz, reach2)
					}
				}

				// Pairs against the forward half stencil.
				for _, off := range halfStencil {
					nx := wrap(cx+off[0], ncell[0])
					ny := wrap(cy+off[1], ncell[1])
					nz := wrap(cz+off[2], ncell[2])
					nc := (nz*ncell[1]+ny)*ncell[0] + nx
					for i := head[c]; i >= 0; i = next[i] {
						for j := head[nc]; j >= 0; j = next[j] {
							a, b := i, j
							if a > b {
								a, b = b, a
							}
							dx, dy, dz := sys.Delta(a, b)
							l.add(a, b, dx*dx+dy*dy+dz*dz, reach2)
						}
					}
				}
			}
		}
	}
}
