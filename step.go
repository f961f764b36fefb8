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
	"io"
	"math"
	"time"

	"github.com/vascularmodel/hemolb/comm"
	"github.com/vascularmodel/hemolb/d3q15"
)

// DomainManipulator is a function that operates on the whole per-rank
// domain, for example advancing one timestep or reducing observables.
type DomainManipulator func(d *Domain) error

// Simulation runs a domain through a chain of manipulators: InitFuncs
// once before the run, StepFuncs once per timestep until the domain is
// Done, and CleanupFuncs afterwards.
type Simulation struct {
	InitFuncs    []DomainManipulator
	StepFuncs    []DomainManipulator
	CleanupFuncs []DomainManipulator

	Domain *Domain
}

// Init runs the initialisation functions.
func (s *Simulation) Init() error {
	for _, f := range s.InitFuncs {
		if f == nil {
			continue
		}
		if err := f(s.Domain); err != nil {
			return err
		}
	}
	return nil
}

// Run advances the simulation until a step function sets Done,
// then runs the cleanup functions. Timestep counting is 1-based within
// each cardiac cycle.
func (s *Simulation) Run() error {
	d := s.Domain
	for !d.Done {
		d.TimeStep++
		atCycleEnd := d.TimeStep >= d.Period
		for _, f := range s.StepFuncs {
			if f == nil {
				continue
			}
			if err := f(d); err != nil {
				return err
			}
		}
		// A restart rewinds TimeStep; only roll the cycle over if it
		// still stands at the boundary it reached.
		if atCycleEnd && d.TimeStep >= d.Period {
			d.Cycle++
			d.TimeStep = 0
		}
	}
	for _, f := range s.CleanupFuncs {
		if f == nil {
			continue
		}
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// UpdateBoundaries samples the pulsatile boundary driver for the
// current timestep.
func UpdateBoundaries() DomainManipulator {
	return func(d *Domain) error {
		d.Bounds.Update(d.Period, d.TimeStep)
		return nil
	}
}

// Step advances the lattice by one timestep. The phase order is fixed:
// post receives, collide the inter region, post sends, collide the
// inner region, wait for the exchange, absorb the received
// distributions, run the per-class post-step pass, and swap the
// distribution buffers.
func Step() DomainManipulator {
	return func(d *Domain) error {
		reqs := make([]comm.Request, 0, 2*len(d.Part.Neighbors))
		for n, nb := range d.Part.Neighbors {
			req, err := d.Comm.Irecv(nb.Rank, tagDistributions, d.recvBufs[n])
			if err != nil {
				return fmt.Errorf("hemolb: posting receive from rank %d: %v", nb.Rank, err)
			}
			reqs = append(reqs, req)
		}

		t := time.Now()

		// Inter sites first: their outbound directions must be ready
		// before the sends are posted.
		offset := d.Part.InnerSiteCount
		for c := 0; c < CollisionClasses; c++ {
			d.colliders[c].DoCollisions(offset, d.Part.InterCounts[c], d)
			offset += d.Part.InterCounts[c]
		}

		now := time.Now()
		d.Timings.LB += now.Sub(t)
		t = now

		tail := d.Part.SiteCount * d3q15.NumVectors
		for n, nb := range d.Part.Neighbors {
			base := tail + d.tailOffset[n]
			copy(d.sendBufs[n], d.FNew[base:base+len(nb.Send)])
			req, err := d.Comm.Isend(nb.Rank, tagDistributions, d.sendBufs[n])
			if err != nil {
				return fmt.Errorf("hemolb: posting send to rank %d: %v", nb.Rank, err)
			}
			reqs = append(reqs, req)
		}

		now = time.Now()
		d.Timings.Send += now.Sub(t)
		t = now

		// Inner sites overlap with the exchange in flight.
		offset = 0
		for c := 0; c < CollisionClasses; c++ {
			d.colliders[c].DoCollisions(offset, d.Part.InnerCounts[c], d)
			offset += d.Part.InnerCounts[c]
		}

		now = time.Now()
		d.Timings.LB += now.Sub(t)
		t = now

		if err := d.Comm.WaitAll(reqs); err != nil {
			return fmt.Errorf("hemolb: neighbour exchange: %v", err)
		}

		now = time.Now()
		d.Timings.Wait += now.Sub(t)
		t = now

		for n, nb := range d.Part.Neighbors {
			for k, slot := range nb.Recv {
				d.FNew[slot.Site*d3q15.NumVectors+slot.Dir] = d.recvBufs[n][k]
			}
		}

		// Cleanup passes: inner classes first, then inter, with the
		// same per-class indexing as the collide phases.
		offset = 0
		for c := 0; c < CollisionClasses; c++ {
			d.colliders[c].PostStep(offset, d.Part.InnerCounts[c], d)
			offset += d.Part.InnerCounts[c]
		}
		for c := 0; c < CollisionClasses; c++ {
			d.colliders[c].PostStep(offset, d.Part.InterCounts[c], d)
			offset += d.Part.InterCounts[c]
		}

		d.swap()
		d.Timings.LB += time.Since(t)
		d.Timings.Steps++
		return nil
	}
}

// UpdateInletVelocities accumulates the per-inlet velocity statistics
// for the current timestep. When inlet normals are available the speed
// is signed by the projection onto the normal, so reverse flow through
// an inlet reports as negative.
func UpdateInletVelocities() DomainManipulator {
	return func(d *Domain) error {
		if d.Bounds.Inlets() == 0 {
			return nil
		}
		if d.TimeStep == 1 {
			d.Obs.ResetInletStats()
		}

		inletRange := func(offset, count int) {
			for i := offset; i < offset+count; i++ {
				f := d.FOld[i*d3q15.NumVectors : (i+1)*d3q15.NumVectors]
				density, mx, my, mz := d3q15.CalculateDensityAndMomentum(f)
				id := d.Part.BoundaryID[i]
				var velocity float64
				if d.Bounds.HasInletNormals {
					n := d.Bounds.InletNormal[id]
					projection := mx*n[0] + my*n[1] + mz*n[2]
					velocity = math.Sqrt(mx*mx+my*my+mz*mz) / density
					if projection < 0 {
						velocity = -velocity
					}
				} else {
					velocity = math.Sqrt(mx*mx+my*my+mz*mz) / density
				}
				d.Obs.InletStats[id].Update(velocity)
			}
		}

		offset := d.Part.InnerCounts[MidFluidType] + d.Part.InnerCounts[WallType]
		inletRange(offset, d.Part.InnerCounts[InletType])

		offset = d.Part.InnerSiteCount + d.Part.InterCounts[MidFluidType] + d.Part.InterCounts[WallType]
		inletRange(offset, d.Part.InterCounts[InletType])
		return nil
	}
}

// RunEveryCycle gates a manipulator to run on the last timestep of each
// cardiac cycle.
func RunEveryCycle(f DomainManipulator) DomainManipulator {
	return func(d *Domain) error {
		if d.TimeStep >= d.Period {
			return f(d)
		}
		return nil
	}
}

// RunCycles finishes the simulation after the given number of cardiac
// cycles have completed.
func RunCycles(cycles int) DomainManipulator {
	return RunEveryCycle(func(d *Domain) error {
		if d.Cycle+1 >= cycles {
			d.Done = true
		}
		return nil
	})
}

// Log writes a status line for every timestep to w, including the
// current period and the number of stability restarts so far.
func Log(w io.Writer) DomainManipulator {
	startTime := time.Now()
	stepTime := time.Now()

	return func(d *Domain) error {
		fmt.Fprintf(w, "cycle %-3d step %-5d  walltime=%6.3gh  Δwalltime=%4.2gs  "+
			"lb=%v send=%v wait=%v  period=%d restarts=%d\n",
			d.Cycle+1, d.TimeStep, time.Since(startTime).Hours(),
			time.Since(stepTime).Seconds(), d.Timings.LB, d.Timings.Send, d.Timings.Wait,
			d.Period, d.restarts)
		stepTime = time.Now()
		return nil
	}
}
