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
	"sync"
	"testing"

	"github.com/vascularmodel/hemolb/comm"
	"github.com/vascularmodel/hemolb/d3q15"
)

// A single negative distribution value anywhere triggers the restart:
// the period doubles, the relaxation parameters are rederived and every
// site returns to the zero-velocity equilibrium.
func TestStabilityTrigger(t *testing.T) {
	d := boxDomain(t, 4)
	oldPeriod := d.Period
	d.TimeStep = 7

	d.FOld[3] = -1e-12
	if err := StabilityCheck()(d); err != nil {
		t.Fatal(err)
	}

	if d.Period != 2*oldPeriod {
		t.Fatalf("period after restart %d, want %d", d.Period, 2*oldPeriod)
	}
	if d.Restarts() != 1 {
		t.Errorf("restart count %d, want 1", d.Restarts())
	}
	wantTau := TauFromPhysics(d.Period, d.VoxelSize)
	if d.Params.Tau != wantTau {
		t.Errorf("tau %v, want %v", d.Params.Tau, wantTau)
	}
	if d.Params.Omega != -1.0/wantTau {
		t.Errorf("omega %v, want %v", d.Params.Omega, -1.0/wantTau)
	}
	if d.TimeStep != 0 || d.Cycle != 0 {
		t.Errorf("restart resumes at cycle %d step %d, want 0 0", d.Cycle, d.TimeStep)
	}

	// Every site is back at the equilibrium of the mean outlet density.
	var fEq [d3q15.NumVectors]float64
	d3q15.CalculateFeq(d.Bounds.MeanStartDensity(), 0, 0, 0, fEq[:])
	for i := 0; i < d.Part.SiteCount; i++ {
		for l := 0; l < d3q15.NumVectors; l++ {
			if d.FOld[i*d3q15.NumVectors+l] != fEq[l] {
				t.Fatalf("site %d direction %d is %v after restart, want %v",
					i, l, d.FOld[i*d3q15.NumVectors+l], fEq[l])
			}
		}
	}
}

// A stable lattice passes the check without side effects.
func TestStabilityCheckStable(t *testing.T) {
	d := boxDomain(t, 4)
	oldPeriod := d.Period
	if err := StabilityCheck()(d); err != nil {
		t.Fatal(err)
	}
	if d.Period != oldPeriod || d.Restarts() != 0 {
		t.Errorf("stable lattice restarted: period %d, restarts %d", d.Period, d.Restarts())
	}
}

func TestNaNCountsAsUnstable(t *testing.T) {
	d := boxDomain(t, 4)
	d.FOld[0] = math.NaN()
	unstable, err := d.IsUnstable()
	if err != nil {
		t.Fatal(err)
	}
	if !unstable {
		t.Error("NaN not detected as instability")
	}
}

// The restart is bounded: once the budget of period doublings is spent
// the simulation reports itself unrecoverable.
func TestRestartBound(t *testing.T) {
	parts, err := BoxGrid(4).Partition(1)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDomain(parts[0], testSpec(), comm.Single{}, 1000, 1e-4, 1)
	if err != nil {
		t.Fatal(err)
	}

	d.FOld[0] = -1.0
	if err := StabilityCheck()(d); err != nil {
		t.Fatalf("first restart should succeed: %v", err)
	}
	d.FOld[0] = -1.0
	if err := StabilityCheck()(d); err == nil {
		t.Fatal("second restart exceeded the bound but no error returned")
	}
}

// The instability flag is agreed globally: one bad value on one rank
// restarts every rank.
func TestStabilityFlagIsGlobal(t *testing.T) {
	const ranks = 2
	parts, err := BoxGrid(4).Partition(ranks)
	if err != nil {
		t.Fatal(err)
	}
	comms := comm.NewGroup(ranks)

	periods := make([]int, ranks)
	errs := make([]error, ranks)
	var wg sync.WaitGroup
	wg.Add(ranks)
	for r := 0; r < ranks; r++ {
		go func(r int) {
			defer wg.Done()
			d, err := NewDomain(parts[r], testSpec(), comms[r], 1000, 1e-4, 4)
			if err != nil {
				errs[r] = err
				return
			}
			if r == 1 {
				d.FOld[5] = -1e-9 // only rank 1 is locally unstable
			}
			errs[r] = StabilityCheck()(d)
			periods[r] = d.Period
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}
	for r, p := range periods {
		if p != 2000 {
			t.Errorf("rank %d period %d after global restart, want 2000", r, p)
		}
	}
}
