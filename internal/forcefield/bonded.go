package forcefield

import "math"

// delta returns the minimum-image vector from particle j to particle i.
func (ev *Evaluator) delta(i, j int) vec3 {
	dx, dy, dz := ev.sys.Delta(i, j)
	return vec3{dx, dy, dz}
}

func (ev *Evaluator) addForce(i int, f vec3) {
	ev.sys.Force[3*i] += f[0]
	ev.sys.Force[3*i+1] += f[1]
	ev.sys.Force[3*i+2] += f[2]
}

// computeBonds evaluates the quartic class2 bond:
// E = K2 dr^2 + K3 dr^3 + K4 dr^4, dr = r - r0.
func (ev *Evaluator) computeBonds(res *Result) {
	for _, b := range ev.sys.Bonds {
		d := ev.delta(b.I, b.J)
		r := norm(d)
		if r < 1e-10 {
			continue
		}
		dr := r - b.C.R0
		res.E.Bond += dr * dr * (b.C.K2 + dr*(b.C.K3+dr*b.C.K4))
		dEdr := dr * (2*b.C.K2 + dr*(3*b.C.K3+4*dr*b.C.K4))

		fpair := -dEdr / r
		f := d.scale(fpair)
		ev.addForce(b.I, f)
		ev.addForce(b.J, f.scale(-1))
		res.Virial += fpair * r * r
	}
}

// computeAngles evaluates the quartic class2 angle with bond-bond and
// bond-angle cross terms.
func (ev *Evaluator) computeAngles(res *Result) {
	for _, a := range ev.sys.Angles {
		d1 := ev.delta(a.I, a.J)
		d2 := ev.delta(a.K, a.J)
		theta, gi, gk, ok := angleGeom(d1, d2)
		if !ok {
			continue
		}
		r1 := norm(d1)
		r2 := norm(d2)
		u1 := d1.scale(1 / r1)
		u2 := d2.scale(1 / r2)

		dt := theta - a.C.Theta0
		dr1 := r1 - a.C.BA.R1
		dr2 := r2 - a.C.BA.R2

		// Quartic angle term.
		res.E.Angle += dt * dt * (a.C.K2 + dt*(a.C.K3+dt*a.C.K4))
		dEdTheta := dt * (2*a.C.K2 + dt*(3*a.C.K3+4*dt*a.C.K4))
		var dEdR1, dEdR2 float64

		// Bond-bond cross term.
		bb1 := r1 - a.C.BB.R1
		bb2 := r2 - a.C.BB.R2
		res.E.Angle += a.C.BB.M * bb1 * bb2
		dEdR1 += a.C.BB.M * bb2
		dEdR2 += a.C.BB.M * bb1

		// Bond-angle cross term.
		res.E.Angle += dt * (a.C.BA.N1*dr1 + a.C.BA.N2*dr2)
		dEdTheta += a.C.BA.N1*dr1 + a.C.BA.N2*dr2
		dEdR1 += a.C.BA.N1 * dt
		dEdR2 += a.C.BA.N2 * dt

		fI := gi.scale(-dEdTheta).add(u1.scale(-dEdR1))
		fK := gk.scale(-dEdTheta).add(u2.scale(-dEdR2))
		fJ := fI.add(fK).scale(-1)

		ev.addForce(a.I, fI)
		ev.addForce(a.J, fJ)
		ev.addForce(a.K, fK)
		res.Virial += dot(fI, d1) + dot(fK, d2)
	}
}

// wrapPi wraps an angle into the [-pi, pi] principal range.
func wrapPi(x float64) float64 {
	for x > math.Pi {
		x -= 2 * math.Pi
	}
	for x < -math.Pi {
		x += 2 * math.Pi
	}
	return x
}
