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
	"fmt"
	"math"

	"github.com/vascularmodel/hemolb/comm"
	"github.com/vascularmodel/hemolb/d3q15"
)

// IsUnstable scans the current distributions for non-physical values.
// A negative or NaN distribution anywhere on any rank makes the whole
// simulation unstable; the flag is agreed globally so every rank
// restarts together.
func (d *Domain) IsUnstable() (bool, error) {
	unstable := 0
	if d.unstableHint {
		unstable = 1
	} else {
		for _, f := range d.FOld[:d.Part.SiteCount*d3q15.NumVectors] {
			if f < 0 || math.IsNaN(f) {
				unstable = 1
				break
			}
		}
	}
	global, err := comm.AllReduceIntMax(d.Comm, unstable)
	if err != nil {
		return false, err
	}
	return global != 0, nil
}

// StabilityCheck detects instability after each step and triggers the
// period-doubling restart. The restart shows in the period and restart
// count of the run's Log lines rather than aborting: instability is a
// recoverable resolution problem, not an error.
func StabilityCheck() DomainManipulator {
	return func(d *Domain) error {
		unstable, err := d.IsUnstable()
		if err != nil {
			return err
		}
		d.unstableHint = false
		if !unstable {
			return nil
		}
		return d.Restart()
	}
}

// Restart recovers from numerical instability by doubling the temporal
// resolution and starting the simulation again from equilibrium. The
// sinusoid parameters pass through physical units on the way: their
// lattice values depend on the period being replaced.
func (d *Domain) Restart() error {
	if d.restarts >= d.MaxRestarts {
		return fmt.Errorf("hemolb: still unstable after %d period doublings (period %d)",
			d.restarts, d.Period)
	}
	d.restarts++

	d.Bounds.toPhysicalUnits(d.Units)
	d.Period *= 2
	d.Units = UnitConverter{Tau: d.Params.Tau, VoxelSize: d.VoxelSize, Period: d.Period}
	d.Bounds.toLatticeUnits(d.Units)

	d.RecalculateTauViscosityOmega()
	d.SetInitialConditions()

	d.TimeStep = 0
	d.Cycle = 0
	d.Obs.Reset()
	d.Obs.ResetInletStats()
	return nil
}

// Restarts returns how many period doublings have been performed.
func (d *Domain) Restarts() int { return d.restarts }
