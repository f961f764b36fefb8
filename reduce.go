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

	"github.com/vascularmodel/hemolb/comm"
)

// CycleReductions folds the per-rank observables into global values on
// rank 0 at the end of each cardiac cycle. It leaves the running
// extrema in place; ResetExtrema reinitialises them on the first
// timestep of the next cycle.
//
// Three collectives run, in fixed order: MIN over the density,
// velocity and stress minima; MAX over the corresponding maxima and the
// per-inlet peak velocities; SUM over the per-inlet velocity totals and
// sample counts. On rank 0 the summed totals become averages and both
// peak and average convert to physical units.
func CycleReductions() DomainManipulator {
	return RunEveryCycle(func(d *Domain) error {
		o := d.Obs
		inlets := len(o.InletStats)

		local := make([]float64, 3+inlets)
		global := make([]float64, 3+inlets)

		local[0] = o.MinDensity
		local[1] = o.MinVelocity
		local[2] = o.MinStress
		if err := comm.Reduce(d.Comm, local[:3], global[:3], comm.Min, 0); err != nil {
			return err
		}
		if d.Comm.Rank() == 0 {
			o.MinDensity = global[0]
			o.MinVelocity = global[1]
			o.MinStress = global[2]
		}

		local[0] = o.MaxDensity
		local[1] = o.MaxVelocity
		local[2] = o.MaxStress
		for i := range o.InletStats {
			if o.InletStats[i].Count() == 0 {
				// No inlet sites on this rank; do not distort the peak.
				local[3+i] = -math.MaxFloat64
			} else {
				local[3+i] = o.InletStats[i].Max()
			}
		}
		if err := comm.Reduce(d.Comm, local, global, comm.Max, 0); err != nil {
			return err
		}
		if d.Comm.Rank() == 0 {
			o.MaxDensity = global[0]
			o.MaxVelocity = global[1]
			o.MaxStress = global[2]
		}
		peaks := append([]float64(nil), global[3:]...)

		sums := make([]float64, 2*inlets)
		sumsGlobal := make([]float64, 2*inlets)
		for i := range o.InletStats {
			if o.InletStats[i].Count() > 0 {
				sums[i] = o.InletStats[i].Sum()
			}
			sums[inlets+i] = float64(o.InletStats[i].Count())
		}
		if err := comm.Reduce(d.Comm, sums, sumsGlobal, comm.Sum, 0); err != nil {
			return err
		}

		if d.Comm.Rank() == 0 {
			for i := 0; i < inlets; i++ {
				count := sumsGlobal[inlets+i]
				average := 0.0
				if count > 0 {
					average = sumsGlobal[i] / count
				}
				o.AverageInletVelocity[i] = d.Units.VelocityToPhysicalUnits(average)
				o.PeakInletVelocity[i] = d.Units.VelocityToPhysicalUnits(peaks[i])
			}
		}

		return nil
	})
}

// ResetExtrema reinitialises the running extrema on the first timestep
// of each cardiac cycle, leaving the values reduced at the previous
// cycle boundary readable in between.
func ResetExtrema() DomainManipulator {
	return func(d *Domain) error {
		if d.TimeStep == 1 {
			d.Obs.Reset()
		}
		return nil
	}
}
