package topology

// Class2 bonded coefficient sets. All terms are immutable after load; the
// evaluator treats them as pure functions of the current geometry.

// BondCoeffs parameterize the quartic class2 bond
//
//	E = K2 (r-r0)^2 + K3 (r-r0)^3 + K4 (r-r0)^4
type BondCoeffs struct {
	R0 float64
	K2 float64
	K3 float64
	K4 float64
}

type Bond struct {
	I, J int
	C    BondCoeffs
}

// BondBond is the bond-bond cross term of a class2 angle:
// M (r_ij - R1)(r_jk - R2).
type BondBond struct {
	M  float64
	R1 float64
	R2 float64
}

// BondAngle is the bond-angle cross term of a class2 angle:
// (theta - theta0) [N1 (r_ij - R1) + N2 (r_jk - R2)].
type BondAngle struct {
	N1 float64
	N2 float64
	R1 float64
	R2 float64
}

// AngleCoeffs parameterize the quartic class2 angle plus its cross terms:
//
//	E = K2 dt^2 + K3 dt^3 + K4 dt^4 + bond-bond + bond-angle,  dt = theta - theta0
//
// Theta0 is in radians.
type AngleCoeffs struct {
	Theta0 float64
	K2     float64
	K3     float64
	K4     float64
	BB     BondBond
	BA     BondAngle
}

type Angle struct {
	I, J, K int
	C       AngleCoeffs
}

// MiddleBondTorsion couples the central bond length to the torsion:
// (r_jk - R2) [A1 cos(phi) + A2 cos(2 phi) + A3 cos(3 phi)].
type MiddleBondTorsion struct {
	A  [3]float64
	R2 float64
}

// AngleTorsion couples the two flanking angles to the torsion:
//
//	(theta_ijk - Theta1) [B1 cos(phi) + B2 cos(2 phi) + B3 cos(3 phi)]
//	+ (theta_jkl - Theta2) [C1 cos(phi) + C2 cos(2 phi) + C3 cos(3 phi)]
type AngleTorsion struct {
	B      [3]float64
	C      [3]float64
	Theta1 float64
	Theta2 float64
}

// DihedralCoeffs parameterize the class2 torsion: a three-term Fourier
// expansion plus middle-bond-torsion and angle-torsion cross terms.
//
//	E = sum_n K_n (1 - cos(n phi - Phi_n)) + MBT + AT
type DihedralCoeffs struct {
	K   [3]float64
	Phi [3]float64
	MBT MiddleBondTorsion
	AT  AngleTorsion
}

type Dihedral struct {
	I, J, K, L int
	C          DihedralCoeffs
}

// ImproperCoeffs parameterize the out-of-plane restraint E = K (chi - chi0)^2,
// with chi the improper torsion angle of the ordered tuple.
type ImproperCoeffs struct {
	K    float64
	Chi0 float64
}

type Improper struct {
	I, J, K, L int
	C          ImproperCoeffs
}
