package forcefield

import "math"

// computeDihedrals evaluates the class2 torsion: three-term Fourier expansion
// plus middle-bond-torsion and angle-torsion cross terms.
//
//	E = sum_n K_n (1 - cos(n phi - Phi_n))
//	  + (r_jk - R2) sum_n A_n cos(n phi)
//	  + (theta_ijk - T1) sum_n B_n cos(n phi)
//	  + (theta_jkl - T2) sum_n C_n cos(n phi)
func (ev *Evaluator) computeDihedrals(res *Result) {
	for _, d := range ev.sys.Dihedrals {
		b1 := ev.delta(d.J, d.I)
		b2 := ev.delta(d.K, d.J)
		b3 := ev.delta(d.L, d.K)
		g := newTorsionGeom(b1, b2, b3)
		if !g.ok {
			continue
		}
		phi := g.phi

		var energy, dEdPhi float64

		// Fourier part.
		for n := 0; n < 3; n++ {
			if d.C.K[n] == 0 {
				continue
			}
			arg := float64(n+1)*phi - d.C.Phi[n]
			energy += d.C.K[n] * (1 - math.Cos(arg))
			dEdPhi += d.C.K[n] * float64(n+1) * math.Sin(arg)
		}

		// cos(n phi) basis shared by the cross terms.
		var cosN, dcosN [3]float64
		for n := 0; n < 3; n++ {
			m := float64(n + 1)
			cosN[n] = math.Cos(m * phi)
			dcosN[n] = -m * math.Sin(m*phi)
		}

		// Middle-bond-torsion.
		mbt := d.C.MBT
		if mbt.A != [3]float64{} {
			dr2 := g.r2 - mbt.R2
			sum := mbt.A[0]*cosN[0] + mbt.A[1]*cosN[1] + mbt.A[2]*cosN[2]
			dsum := mbt.A[0]*dcosN[0] + mbt.A[1]*dcosN[1] + mbt.A[2]*dcosN[2]
			energy += dr2 * sum
			dEdPhi += dr2 * dsum

			// Bond-length dependence acts along the central bond J->K.
			b2hat := g.b2.scale(1 / g.r2)
			fBond := b2hat.scale(-sum) // -dE/dr2 * d r2/d r
			ev.addForce(d.K, fBond)
			ev.addForce(d.J, fBond.scale(-1))
			res.Virial += dot(fBond, g.b2)
		}

		// Angle-torsion.
		at := d.C.AT
		hasAT := at.B != [3]float64{} || at.C != [3]float64{}
		if hasAT {
			// theta1 at vertex J (arms J->I and J->K), theta2 at vertex K.
			a1 := b1.scale(-1) // J->I
			a2 := g.b2         // J->K
			th1, g1i, g1k, ok1 := angleGeom(a1, a2)
			a3 := g.b2.scale(-1) // K->J
			a4 := b3             // K->L
			th2, g2j, g2l, ok2 := angleGeom(a3, a4)
			if ok1 && ok2 {
				sumB := at.B[0]*cosN[0] + at.B[1]*cosN[1] + at.B[2]*cosN[2]
				dsumB := at.B[0]*dcosN[0] + at.B[1]*dcosN[1] + at.B[2]*dcosN[2]
				sumC := at.C[0]*cosN[0] + at.C[1]*cosN[1] + at.C[2]*cosN[2]
				dsumC := at.C[0]*dcosN[0] + at.C[1]*dcosN[1] + at.C[2]*dcosN[2]

				dt1 := th1 - at.Theta1
				dt2 := th2 - at.Theta2
				energy += dt1*sumB + dt2*sumC
				dEdPhi += dt1*dsumB + dt2*dsumC

				// theta1 gradient: outer particles I and K, vertex J.
				fI := g1i.scale(-sumB)
				fK := g1k.scale(-sumB)
				fJ := fI.add(fK).scale(-1)
				ev.addForce(d.I, fI)
				ev.addForce(d.J, fJ)
				ev.addForce(d.K, fK)
				res.Virial += dot(fI, a1) + dot(fK, a2)

				// theta2 gradient: outer particles J and L, vertex K.
				fJ2 := g2j.scale(-sumC)
				fL := g2l.scale(-sumC)
				fK2 := fJ2.add(fL).scale(-1)
				ev.addForce(d.J, fJ2)
				ev.addForce(d.K, fK2)
				ev.addForce(d.L, fL)
				res.Virial += dot(fJ2, a3) + dot(fL, a4)
			}
		}

		res.E.Dihedral += energy

		// Torsion-angle gradient distributed over the four particles.
		fI := g.gI.scale(-dEdPhi)
		fJ := g.gJ.scale(-dEdPhi)
		fK := g.gK.scale(-dEdPhi)
		fL := g.gL.scale(-dEdPhi)
		ev.addForce(d.I, fI)
		ev.addForce(d.J, fJ)
		ev.addForce(d.K, fK)
		ev.addForce(d.L, fL)

		// Virial with positions relative to J: I at -b1, K at b2, L at b2+b3.
		res.Virial += dot(fI, b1.scale(-1)) + dot(fK, g.b2) + dot(fL, g.b2.add(b3))
	}
}

// computeImpropers evaluates the harmonic out-of-plane restraint
// E = K (chi - chi0)^2 with chi the improper torsion angle of the ordered
// tuple.
func (ev *Evaluator) computeImpropers(res *Result) {
	for _, im := range ev.sys.Impropers {
		b1 := ev.delta(im.J, im.I)
		b2 := ev.delta(im.K, im.J)
		b3 := ev.delta(im.L, im.K)
		g := newTorsionGeom(b1, b2, b3)
		if !g.ok {
			continue
		}
		dchi := wrapPi(g.phi - im.C.Chi0)
		res.E.Improper += im.C.K * dchi * dchi
		dEdChi := 2 * im.C.K * dchi

		fI := g.gI.scale(-dEdChi)
		fJ := g.gJ.scale(-dEdChi)
		fK := g.gK.scale(-dEdChi)
		fL := g.gL.scale(-dEdChi)
		ev.addForce(im.I, fI)
		ev.addForce(im.J, fJ)
		ev.addForce(im.K, fK)
		ev.addForce(im.L, fL)
		res.Virial += dot(fI, b1.scale(-1)) + dot(fK, g.b2) + dot(fL, g.b2.add(b3))
	}
}
