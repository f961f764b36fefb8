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

	"github.com/GaryBoone/GoStats/stats"
)

// Observables holds the per-rank running extrema of the flow field and
// the per-inlet velocity statistics for the current cardiac cycle. The
// extrema are folded once per collision class range, not per site, and
// globally reduced at cycle boundaries.
type Observables struct {
	MinDensity, MinVelocity, MinStress float64
	MaxDensity, MaxVelocity, MaxStress float64

	// InletStats accumulates the velocity samples observed at each
	// inlet over the current cycle.
	InletStats []stats.Stats

	// PeakInletVelocity and AverageInletVelocity hold the globally
	// reduced per-inlet velocities in physical units. They are
	// populated on the root rank at cycle boundaries.
	PeakInletVelocity    []float64
	AverageInletVelocity []float64
}

// NewObservables allocates observables for the given number of inlets,
// with the extrema in their reset state.
func NewObservables(inlets int) *Observables {
	o := &Observables{
		InletStats:           make([]stats.Stats, inlets),
		PeakInletVelocity:    make([]float64, inlets),
		AverageInletVelocity: make([]float64, inlets),
	}
	o.Reset()
	return o
}

// Reset reinitialises the extrema for a new cardiac cycle. All observed
// values are non-negative, so maxima restart at -1 and minima at the
// largest float.
func (o *Observables) Reset() {
	o.MaxDensity = -1.0
	o.MaxVelocity = -1.0
	o.MaxStress = -1.0
	o.MinDensity = math.MaxFloat64
	o.MinVelocity = math.MaxFloat64
	o.MinStress = math.MaxFloat64
}

// ResetInletStats clears the per-inlet velocity accumulators at the
// start of a cycle.
func (o *Observables) ResetInletStats() {
	for i := range o.InletStats {
		o.InletStats[i] = stats.Stats{}
	}
}

// foldRange merges the extrema gathered over one collision class range
// into the cycle accumulators.
func (o *Observables) foldRange(minDensity, maxDensity, minVelocity, maxVelocity, minStress, maxStress float64) {
	if minDensity < o.MinDensity {
		o.MinDensity = minDensity
	}
	if maxDensity > o.MaxDensity {
		o.MaxDensity = maxDensity
	}
	if minVelocity < o.MinVelocity {
		o.MinVelocity = minVelocity
	}
	if maxVelocity > o.MaxVelocity {
		o.MaxVelocity = maxVelocity
	}
	if minStress < o.MinStress {
		o.MinStress = minStress
	}
	if maxStress > o.MaxStress {
		o.MaxStress = maxStress
	}
}
