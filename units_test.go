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
	"math/rand"
	"testing"

	"github.com/vascularmodel/hemolb/d3q15"
)

func different(a, b, tolerance float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	if a == b {
		return false
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return false
	}
	return math.Abs(a-b)/scale > tolerance
}

func testConverter() UnitConverter {
	return UnitConverter{Tau: 0.6, VoxelSize: 1e-4, Period: 1000}
}

func TestPressureRoundTrip(t *testing.T) {
	u := testConverter()
	if p := u.PressureToPhysicalUnits(u.PressureToLatticeUnits(80.0)); math.Abs(p-80.0) > 1e-10 {
		t.Errorf("80 mmHg round trip gives %v", p)
	}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		p := 40.0 + 120.0*r.Float64()
		if got := u.PressureToPhysicalUnits(u.PressureToLatticeUnits(p)); different(got, p, 1e-12) {
			t.Fatalf("pressure %v round trips to %v", p, got)
		}
		g := -10.0 + 20.0*r.Float64()
		if got := u.PressureGradToPhysicalUnits(u.PressureGradToLatticeUnits(g)); different(got, g, 1e-12) {
			t.Fatalf("pressure gradient %v round trips to %v", g, got)
		}
		v := 2.0 * r.Float64()
		if got := u.VelocityToPhysicalUnits(u.VelocityToLatticeUnits(v)); different(got, v, 1e-12) {
			t.Fatalf("velocity %v round trips to %v", v, got)
		}
		s := 50.0 * r.Float64()
		if got := u.StressToPhysicalUnits(u.StressToLatticeUnits(s)); different(got, s, 1e-12) {
			t.Fatalf("stress %v round trips to %v", s, got)
		}
	}
}

// The reference pressure is the anchor of the scale: it maps to the
// lattice speed of sound squared, which is unit density.
func TestReferencePressure(t *testing.T) {
	u := testConverter()
	if got := u.PressureToLatticeUnits(ReferencePressure); different(got, d3q15.Cs2, 1e-14) {
		t.Errorf("reference pressure maps to %v, want %v", got, d3q15.Cs2)
	}
}

func TestRecalculateTauViscosityOmega(t *testing.T) {
	d := &Domain{Period: 1000, VoxelSize: 1e-4}
	d.RecalculateTauViscosityOmega()

	wantTau := 0.5 + (PulsatilePeriod*BloodViscosity/BloodDensity)/
		(d3q15.Cs2*1000.0*1e-4*1e-4)
	if different(d.Params.Tau, wantTau, 1e-14) {
		t.Errorf("tau = %v, want %v", d.Params.Tau, wantTau)
	}
	if d.Params.Omega != -1.0/d.Params.Tau {
		t.Errorf("omega = %v, want %v", d.Params.Omega, -1.0/d.Params.Tau)
	}
	want := (1.0 - 1.0/(2.0*d.Params.Tau)) / math.Sqrt2
	if d.Params.StressParameter != want {
		t.Errorf("stress parameter = %v, want %v", d.Params.StressParameter, want)
	}
	if d.Units.Tau != d.Params.Tau || d.Units.Period != d.Period {
		t.Error("unit converter not refreshed with the new parameters")
	}

	// Doubling the period must bring tau towards 1/2 and keep it above.
	d.Period *= 2
	d.RecalculateTauViscosityOmega()
	if d.Params.Tau <= 0.5 || d.Params.Tau >= wantTau {
		t.Errorf("tau after period doubling = %v, want in (0.5, %v)", d.Params.Tau, wantTau)
	}
}
