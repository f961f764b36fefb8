/*
Copyright © 2026 the HemoLB authors.
This file is part of HemoLB.

HemoLB is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HemoLB is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HemoLB.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package d3q15 holds the lattice descriptor for the D3Q15
// lattice-Boltzmann stencil: the fifteen discrete velocities, their
// quadrature weights, the opposite-direction permutation, and the
// equilibrium-distribution and moment-extraction primitives shared by
// the collision kernels.
package d3q15

import "math"

// NumVectors is the number of discrete velocities in the stencil.
const NumVectors = 15

// Cs2 is the square of the lattice speed of sound.
const Cs2 = 1.0 / 3.0

// Discrete velocity components. Direction 0 is the rest vector,
// directions 1-6 are the axis-aligned face vectors and directions 7-14
// are the cube-corner vectors.
var (
	CX = [NumVectors]int{0, 1, -1, 0, 0, 0, 0, 1, -1, 1, -1, 1, -1, 1, -1}
	CY = [NumVectors]int{0, 0, 0, 1, -1, 0, 0, 1, -1, 1, -1, -1, 1, -1, 1}
	CZ = [NumVectors]int{0, 0, 0, 0, 0, 1, -1, 1, -1, -1, 1, 1, -1, -1, 1}
)

// Inverse maps each direction to the direction with the opposite
// velocity vector.
var Inverse = [NumVectors]int{0, 2, 1, 4, 3, 6, 5, 8, 7, 10, 9, 12, 11, 14, 13}

// Weights are the quadrature weights: 2/9 for the rest vector, 1/9 for
// the face vectors and 1/72 for the corner vectors.
var Weights = [NumVectors]float64{
	2.0 / 9.0,
	1.0 / 9.0, 1.0 / 9.0, 1.0 / 9.0, 1.0 / 9.0, 1.0 / 9.0, 1.0 / 9.0,
	1.0 / 72.0, 1.0 / 72.0, 1.0 / 72.0, 1.0 / 72.0,
	1.0 / 72.0, 1.0 / 72.0, 1.0 / 72.0, 1.0 / 72.0,
}

// CalculateDensityAndMomentum returns the zeroth and first moments of
// the distribution f: the density and the raw momentum components
// (density times velocity). Callers divide by the density when a true
// velocity is needed.
func CalculateDensityAndMomentum(f []float64) (density, mx, my, mz float64) {
	for l := 0; l < NumVectors; l++ {
		density += f[l]
		mx += float64(CX[l]) * f[l]
		my += float64(CY[l]) * f[l]
		mz += float64(CZ[l]) * f[l]
	}
	return
}

// CalculateFeq writes the second-order equilibrium distribution for the
// given density and momentum into fEq. The velocity arguments are
// momentum components (density times velocity) throughout, consistent
// with CalculateDensityAndMomentum.
func CalculateFeq(density, mx, my, mz float64, fEq []float64) {
	momentumSquared := mx*mx + my*my + mz*mz
	for l := 0; l < NumVectors; l++ {
		cDotM := float64(CX[l])*mx + float64(CY[l])*my + float64(CZ[l])*mz
		fEq[l] = Weights[l] * (density +
			3.0*cDotM +
			(9.0/2.0)*cDotM*cDotM/density -
			(3.0/2.0)*momentumSquared/density)
	}
}

// CalculateVonMisesStress returns the effective von Mises stress
// derived from the non-equilibrium part of a distribution, scaled by
// the stress parameter (1 - 1/(2 tau)) / sqrt(2).
func CalculateVonMisesStress(fNeq []float64, stressParameter float64) float64 {
	var pxx, pyy, pzz, pxy, pxz, pyz float64
	for l := 0; l < NumVectors; l++ {
		cx := float64(CX[l])
		cy := float64(CY[l])
		cz := float64(CZ[l])
		pxx += cx * cx * fNeq[l]
		pyy += cy * cy * fNeq[l]
		pzz += cz * cz * fNeq[l]
		pxy += cx * cy * fNeq[l]
		pxz += cx * cz * fNeq[l]
		pyz += cy * cz * fNeq[l]
	}
	a := (pxx-pyy)*(pxx-pyy) + (pyy-pzz)*(pyy-pzz) + (pxx-pzz)*(pxx-pzz)
	b := pxy*pxy + pxz*pxz + pyz*pyz
	return stressParameter * math.Sqrt(a+6.0*b)
}
