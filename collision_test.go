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
	"testing"

	"github.com/vascularmodel/hemolb/comm"
	"github.com/vascularmodel/hemolb/d3q15"
)

// A closed periodic box of bulk fluid neither creates nor destroys
// mass, however long it runs.
func TestMassConservation(t *testing.T) {
	d := boxDomain(t, 8)
	perturb(d, 1e-4)
	initial := d.TotalDensity()
	runSteps(t, d, 100)
	if final := d.TotalDensity(); different(final, initial, 1e-12) {
		t.Errorf("mass drifted from %v to %v", initial, final)
	}
}

// A lattice already at equilibrium is a fixed point of the bulk
// collide-and-stream update.
func TestEquilibriumFixedPoint(t *testing.T) {
	d := boxDomain(t, 6)
	var fEq [d3q15.NumVectors]float64
	d3q15.CalculateFeq(1.0, 0.01, 0.002, -0.005, fEq[:])
	for i := 0; i < d.Part.SiteCount; i++ {
		copy(d.FOld[i*d3q15.NumVectors:(i+1)*d3q15.NumVectors], fEq[:])
	}
	runSteps(t, d, 1)
	for i := 0; i < d.Part.SiteCount*d3q15.NumVectors; i++ {
		if different(d.FOld[i], fEq[i%d3q15.NumVectors], 1e-12) {
			t.Fatalf("slot %d moved from %v to %v", i, fEq[i%d3q15.NumVectors], d.FOld[i])
		}
	}
}

// A quiescent box stays quiescent: density 1 and zero velocity at
// every site after many steps.
func TestQuiescentBox(t *testing.T) {
	d := boxDomain(t, 8)
	runSteps(t, d, 100)
	for i := 0; i < d.Part.SiteCount; i++ {
		f := d.FOld[i*d3q15.NumVectors : (i+1)*d3q15.NumVectors]
		density, mx, my, mz := d3q15.CalculateDensityAndMomentum(f)
		if different(density, 1.0, 1e-12) {
			t.Fatalf("site %d density %v, want 1", i, density)
		}
		if math.Abs(mx) > 1e-12 || math.Abs(my) > 1e-12 || math.Abs(mz) > 1e-12 {
			t.Fatalf("site %d momentum (%v,%v,%v), want 0", i, mx, my, mz)
		}
	}
	if d.Obs.MaxDensity < 0 {
		t.Error("extrema never updated")
	}
}

// One bulk site enclosed by resting walls keeps its density and stays
// at rest.
func TestWallBounce(t *testing.T) {
	g := NewVoxelGrid(3, 3, 3, false)
	g.SetSite(1, 1, 1, MidFluidType, 0)
	g.SetSite(0, 1, 1, WallType, 0)
	g.SetSite(2, 1, 1, WallType, 0)
	g.SetSite(1, 0, 1, WallType, 0)
	g.SetSite(1, 2, 1, WallType, 0)
	g.SetSite(1, 1, 0, WallType, 0)
	g.SetSite(1, 1, 2, WallType, 0)
	parts, err := g.Partition(1)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDomain(parts[0], testSpec(), comm.Single{}, 1000, 1e-4, 4)
	if err != nil {
		t.Fatal(err)
	}

	initial := d.TotalDensity()
	runSteps(t, d, 1)

	// The single mid-fluid site sorts first.
	f := d.FOld[:d3q15.NumVectors]
	density, mx, my, mz := d3q15.CalculateDensityAndMomentum(f)
	if math.Abs(density-1.0) > 1e-14 {
		t.Errorf("enclosed site density %v, want 1", density)
	}
	if math.Abs(mx) > 1e-14 || math.Abs(my) > 1e-14 || math.Abs(mz) > 1e-14 {
		t.Errorf("enclosed site momentum (%v,%v,%v), want 0", mx, my, mz)
	}
	if final := d.TotalDensity(); different(final, initial, 1e-12) {
		t.Errorf("wall geometry mass drifted from %v to %v", initial, final)
	}
}

func channelDomain(t *testing.T) *Domain {
	t.Helper()
	parts, err := ChannelGrid(5, 5, 12).Partition(1)
	if err != nil {
		t.Fatal(err)
	}
	spec := &PressureSpec{
		Inlet:  []PressureCondition{{Mean: 80.1, Amplitude: 0.0}},
		Outlet: []PressureCondition{{Mean: 80.0, Amplitude: 0.0}},
	}
	d, err := NewDomain(parts[0], spec, comm.Single{}, 100, 1e-3, 4)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestCalculateBC(t *testing.T) {
	d := channelDomain(t)
	d.TimeStep = 1
	d.Bounds.Update(d.Period, d.TimeStep)

	// First inlet site: inner region, after the mid-fluid and wall
	// classes.
	site := d.Part.InnerCounts[MidFluidType] + d.Part.InnerCounts[WallType]
	if d.Part.SiteClass(site) != InletType {
		t.Fatalf("site %d has class %d, want inlet", site, d.Part.SiteClass(site))
	}

	f := make([]float64, d3q15.NumVectors)
	copy(f, d.FOld[site*d3q15.NumVectors:(site+1)*d3q15.NumVectors])
	f[1] += 1e-3 // disturb so the non-equilibrium part is non-trivial
	fIn := append([]float64(nil), f...)
	fNeq := make([]float64, d3q15.NumVectors)

	density, mx, my, mz := d.CalculateBC(f, InletType, 0, fNeq)
	if density != d.Bounds.InletDensity[0] {
		t.Errorf("imposed density %v, want %v", density, d.Bounds.InletDensity[0])
	}

	var want [d3q15.NumVectors]float64
	d3q15.CalculateFeq(density, mx, my, mz, want[:])
	for l := 0; l < d3q15.NumVectors; l++ {
		if different(f[l], want[l], 1e-14) {
			t.Fatalf("direction %d is %v, want equilibrium %v", l, f[l], want[l])
		}
		if different(fNeq[l], fIn[l]-want[l], 1e-12) {
			t.Fatalf("direction %d non-equilibrium part %v, want %v", l, fNeq[l], fIn[l]-want[l])
		}
	}

	// Where an opening meets the wall the momentum is zeroed as well.
	copy(f, fIn)
	density, mx, my, mz = d.CalculateBC(f, InletWallType, 0, fNeq)
	if mx != 0 || my != 0 || mz != 0 {
		t.Errorf("inlet-wall momentum (%v,%v,%v), want 0", mx, my, mz)
	}
	d3q15.CalculateFeq(density, 0, 0, 0, want[:])
	for l := 0; l < d3q15.NumVectors; l++ {
		if f[l] != want[l] {
			t.Fatalf("inlet-wall direction %d is %v, want resting equilibrium %v", l, f[l], want[l])
		}
	}

	// Bulk sites pass through untouched.
	copy(f, fIn)
	density, _, _, _ = d.CalculateBC(f, MidFluidType, -1, fNeq)
	var sum float64
	for _, v := range fIn {
		sum += v
	}
	if different(density, sum, 1e-14) {
		t.Errorf("bulk density %v, want %v", density, sum)
	}
	for l := 0; l < d3q15.NumVectors; l++ {
		if f[l] != fIn[l] {
			t.Fatal("bulk distribution modified")
		}
	}
}

// A non-physical distribution must not poison the step with NaN; the
// kernels clamp, flag, and carry on.
func TestClampOnNonPhysicalDensity(t *testing.T) {
	d := boxDomain(t, 4)
	for l := 0; l < d3q15.NumVectors; l++ {
		d.FOld[l] = -1e-3
	}
	runSteps(t, d, 1)
	for i, f := range d.FOld[:d.Part.SiteCount*d3q15.NumVectors] {
		if math.IsNaN(f) {
			t.Fatalf("NaN at slot %d after clamped step", i)
		}
	}
	unstable, err := d.IsUnstable()
	if err != nil {
		t.Fatal(err)
	}
	if !unstable {
		t.Error("clamped step did not leave the instability flag set")
	}
}
