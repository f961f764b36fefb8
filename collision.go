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

package hemolb

import (
	"math"

	"github.com/vascularmodel/hemolb/d3q15"
)

// Collider is the contract shared by the six collision classes: apply
// the per-class collide+stream policy to a contiguous range of sites,
// and perform any per-class cleanup after the exchange has completed.
// Dispatch happens once per class range, never per site.
type Collider interface {
	DoCollisions(offset, count int, d *Domain)
	PostStep(offset, count int, d *Domain)
}

// clampDensity replaces a non-physical density so the step can
// complete without producing NaN. The stability monitor picks the
// condition up after the step.
const clampDensity = 1e-30

func (d *Domain) initCollisions() {
	d.colliders = [CollisionClasses]Collider{
		midFluidCollision{},
		wallCollision{},
		nonZeroVelocityBoundaryDensity{siteType: InletType},
		nonZeroVelocityBoundaryDensity{siteType: OutletType},
		zeroVelocityBoundaryDensity{siteType: InletWallType},
		zeroVelocityBoundaryDensity{siteType: OutletWallType},
	}
}

// CalculateBC computes the boundary-condition state for a single site:
// the imposed density, the raw momentum, and the non-equilibrium part
// of the incoming distribution. For the four opening classes f is
// overwritten with the equilibrium distribution at the prescribed
// density, keeping the incoming momentum at plain openings and zeroing
// it where the opening meets the wall; for bulk and wall sites f is
// left untouched. This is the canonical site-level boundary
// implementation: the opening collision kernels delegate to it and
// derive their stress observable from the fNeq it returns.
func (d *Domain) CalculateBC(f []float64, siteType SiteType, boundaryID int,
	fNeq []float64) (density, mx, my, mz float64) {

	for l := 0; l < d3q15.NumVectors; l++ {
		fNeq[l] = f[l]
	}

	switch siteType {
	case MidFluidType, WallType:
		density, mx, my, mz = d3q15.CalculateDensityAndMomentum(f)
	default:
		if siteType == InletType || siteType == InletWallType {
			density = d.Bounds.InletDensity[boundaryID]
		} else {
			density = d.Bounds.OutletDensity[boundaryID]
		}
		if density <= 0 {
			d.unstableHint = true
			density = clampDensity
		}
		if siteType == InletType || siteType == OutletType {
			_, mx, my, mz = d3q15.CalculateDensityAndMomentum(f)
		}
		d3q15.CalculateFeq(density, mx, my, mz, f)
	}

	for l := 0; l < d3q15.NumVectors; l++ {
		fNeq[l] -= f[l]
	}
	return density, mx, my, mz
}

// extrema tracks the running extremes over one class range so the hot
// loops touch only locals, folding into the shared accumulator once.
type extrema struct {
	minDensity, minVelocity, minStress float64
	maxDensity, maxVelocity, maxStress float64
}

func newExtrema() extrema {
	return extrema{
		minDensity:  math.MaxFloat64,
		minVelocity: math.MaxFloat64,
		minStress:   math.MaxFloat64,
		maxDensity:  -1.0,
		maxVelocity: -1.0,
		maxStress:   -1.0,
	}
}

func (e *extrema) update(density, velocity, stress float64) {
	if density < e.minDensity {
		e.minDensity = density
	}
	if density > e.maxDensity {
		e.maxDensity = density
	}
	if velocity < e.minVelocity {
		e.minVelocity = velocity
	}
	if velocity > e.maxVelocity {
		e.maxVelocity = velocity
	}
	if stress < e.minStress {
		e.minStress = stress
	}
	if stress > e.maxStress {
		e.maxStress = stress
	}
}

func (e *extrema) fold(o *Observables) {
	if e.maxDensity < 0 { // empty range
		return
	}
	o.foldRange(e.minDensity, e.maxDensity, e.minVelocity, e.maxVelocity, e.minStress, e.maxStress)
}

type noPostStep struct{}

// PostStep is a no-op: none of the collision classes carry state that
// needs fixing up after the neighbour exchange.
func (noPostStep) PostStep(offset, count int, d *Domain) {}

// midFluidCollision is the bulk BGK stream-and-collide operator: relax
// the distribution towards the local equilibrium and scatter the
// post-collision values to the neighbouring sites.
type midFluidCollision struct{ noPostStep }

func (midFluidCollision) DoCollisions(offset, count int, d *Domain) {
	var fEq, fNeq [d3q15.NumVectors]float64
	ext := newExtrema()
	omega := d.Params.Omega
	for i := offset; i < offset+count; i++ {
		f := d.FOld[i*d3q15.NumVectors : (i+1)*d3q15.NumVectors]
		density, mx, my, mz := d3q15.CalculateDensityAndMomentum(f)
		if density <= 0 {
			d.unstableHint = true
			density = clampDensity
		}
		d3q15.CalculateFeq(density, mx, my, mz, fEq[:])
		for l := 0; l < d3q15.NumVectors; l++ {
			fNeq[l] = f[l] - fEq[l]
			d.FNew[d.Part.Stream[i*d3q15.NumVectors+l]] = f[l] + omega*fNeq[l]
		}
		velocity := math.Sqrt(mx*mx+my*my+mz*mz) / density
		stress := d3q15.CalculateVonMisesStress(fNeq[:], d.Params.StressParameter)
		ext.update(density, velocity, stress)
	}
	ext.fold(d.Obs)
}

// wallCollision imposes zero velocity at wall sites: the distribution
// is replaced by the equilibrium at the site's own density and streamed.
type wallCollision struct{ noPostStep }

func (wallCollision) DoCollisions(offset, count int, d *Domain) {
	var fEq, fNeq [d3q15.NumVectors]float64
	ext := newExtrema()
	for i := offset; i < offset+count; i++ {
		f := d.FOld[i*d3q15.NumVectors : (i+1)*d3q15.NumVectors]
		density, _, _, _ := d3q15.CalculateDensityAndMomentum(f)
		if density <= 0 {
			d.unstableHint = true
			density = clampDensity
		}
		d3q15.CalculateFeq(density, 0.0, 0.0, 0.0, fEq[:])
		for l := 0; l < d3q15.NumVectors; l++ {
			fNeq[l] = f[l] - fEq[l]
			d.FNew[d.Part.Stream[i*d3q15.NumVectors+l]] = fEq[l]
		}
		stress := d3q15.CalculateVonMisesStress(fNeq[:], d.Params.StressParameter)
		ext.update(density, 0.0, stress)
	}
	ext.fold(d.Obs)
}

// nonZeroVelocityBoundaryDensity drives inlet and outlet sites: the
// density is overridden by the boundary driver's current prescription,
// the momentum is kept from the incoming distribution, and the
// equilibrium at that state is streamed. The site-level work is
// delegated to CalculateBC, which rewrites the distribution in place;
// the buffer swap makes the overwritten FOld block dead after this
// step.
type nonZeroVelocityBoundaryDensity struct {
	noPostStep
	siteType SiteType
}

func (c nonZeroVelocityBoundaryDensity) DoCollisions(offset, count int, d *Domain) {
	var fNeq [d3q15.NumVectors]float64
	ext := newExtrema()
	for i := offset; i < offset+count; i++ {
		f := d.FOld[i*d3q15.NumVectors : (i+1)*d3q15.NumVectors]
		density, mx, my, mz := d.CalculateBC(f, c.siteType, d.Part.BoundaryID[i], fNeq[:])
		for l := 0; l < d3q15.NumVectors; l++ {
			d.FNew[d.Part.Stream[i*d3q15.NumVectors+l]] = f[l]
		}
		velocity := math.Sqrt(mx*mx+my*my+mz*mz) / density
		stress := d3q15.CalculateVonMisesStress(fNeq[:], d.Params.StressParameter)
		ext.update(density, velocity, stress)
	}
	ext.fold(d.Obs)
}

// zeroVelocityBoundaryDensity drives the sites where an opening meets
// the vessel wall: prescribed density, zero velocity, again through
// CalculateBC.
type zeroVelocityBoundaryDensity struct {
	noPostStep
	siteType SiteType
}

func (c zeroVelocityBoundaryDensity) DoCollisions(offset, count int, d *Domain) {
	var fNeq [d3q15.NumVectors]float64
	ext := newExtrema()
	for i := offset; i < offset+count; i++ {
		f := d.FOld[i*d3q15.NumVectors : (i+1)*d3q15.NumVectors]
		density, _, _, _ := d.CalculateBC(f, c.siteType, d.Part.BoundaryID[i], fNeq[:])
		for l := 0; l < d3q15.NumVectors; l++ {
			d.FNew[d.Part.Stream[i*d3q15.NumVectors+l]] = f[l]
		}
		stress := d3q15.CalculateVonMisesStress(fNeq[:], d.Params.StressParameter)
		ext.update(density, 0.0, stress)
	}
	ext.fold(d.Obs)
}
