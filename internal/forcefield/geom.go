package forcefield

import "math"

type vec3 [3]float64

func (a vec3) add(b vec3) vec3 { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) sub(b vec3) vec3 { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) scale(s float64) vec3 {
	return vec3{a[0] * s, a[1] * s, a[2] * s}
}

func dot(a, b vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b vec3) vec3 {
	return vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func norm(a vec3) float64 { return math.Sqrt(dot(a, a)) }

// angleGeom returns the angle at the vertex of two bond vectors (both
// pointing away from the vertex) together with the angle gradients on the two
// outer particles. The vertex gradient is the negated sum.
func angleGeom(d1, d2 vec3) (theta float64, gi, gk vec3, ok bool) {
	r1 := norm(d1)
	r2 := norm(d2)
	if r1 < 1e-10 || r2 < 1e-10 {
		return 0, vec3{}, vec3{}, false
	}
	u1 := d1.scale(1 / r1)
	u2 := d2.scale(1 / r2)
	c := dot(u1, u2)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	theta = math.Acos(c)
	s := math.Sin(theta)
	if s < 1e-8 {
		return theta, vec3{}, vec3{}, false
	}
	gi = u1.scale(c).sub(u2).scale(1 / (r1 * s))
	gk = u2.scale(c).sub(u1).scale(1 / (r2 * s))
	return theta, gi, gk, true
}

// torsionGeom holds the dihedral angle of four particles and its gradient on
// each of them. b1, b2, b3 are the minimum-image bond vectors I->J, J->K,
// K->L.
type torsionGeom struct {
	phi            float64
	b1, b2, b3     vec3
	r2             float64 // |b2|
	gI, gJ, gK, gL vec3
	ok             bool
}

func newTorsionGeom(b1, b2, b3 vec3) torsionGeom {
	g := torsionGeom{b1: b1, b2: b2, b3: b3}
	n1 := cross(b1, b2)
	n2 := cross(b2, b3)
	n1sq := dot(n1, n1)
	n2sq := dot(n2, n2)
	g.r2 = norm(b2)
	if n1sq < 1e-12 || n2sq < 1e-12 || g.r2 < 1e-10 {
		return g
	}
	g.ok = true

	b2hat := b2.scale(1 / g.r2)
	g.phi = math.Atan2(dot(cross(n1, n2), b2hat), dot(n1, n2))

	ti := n1.scale(-g.r2 / n1sq)
	tl := n2.scale(g.r2 / n2sq)
	f1 := dot(b1, b2) / (g.r2 * g.r2)
	f3 := dot(b3, b2) / (g.r2 * g.r2)

	g.gI = ti
	g.gL = tl
	g.gJ = ti.scale(f1 - 1).add(tl.scale(f3))
	g.gK = ti.scale(-f1).sub(tl.scale(1 + f3))
	return g
}
