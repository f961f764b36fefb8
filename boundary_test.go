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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestPulsatileDriver(t *testing.T) {
	const period = 1000
	u := UnitConverter{Tau: 0.6, VoxelSize: 1e-4, Period: period}
	spec := &PressureSpec{
		Inlet:  []PressureCondition{{Mean: 80.0, Amplitude: 10.0, Phase: 0.0}},
		Outlet: []PressureCondition{{Mean: 80.0, Amplitude: 0.0, Phase: 0.0}},
	}
	b := NewBoundaryDriver(spec, u)

	avg := b.inletAvg[0]
	amp := b.inletAmp[0]
	if amp <= 0 {
		t.Fatalf("inlet amplitude %v, want positive", amp)
	}

	var sum, peak float64
	peak = -math.MaxFloat64
	for step := 1; step <= period; step++ {
		b.Update(period, step)
		sum += b.InletDensity[0]
		if b.InletDensity[0] > peak {
			peak = b.InletDensity[0]
		}
		if b.OutletDensity[0] != b.outletAvg[0] {
			t.Fatalf("outlet with zero amplitude moved to %v", b.OutletDensity[0])
		}
	}

	// The sinusoid averages to its mean over a whole cycle and peaks at
	// mean plus amplitude (the phase-zero peak lands exactly on the
	// final sample of the cycle).
	if mean := sum / period; different(mean, avg, 1e-12) {
		t.Errorf("cycle mean %v, want %v", mean, avg)
	}
	if different(peak, avg+amp, 1e-12) {
		t.Errorf("cycle peak %v, want %v", peak, avg+amp)
	}
}

func TestReadPressureFile(t *testing.T) {
	content := `
[[inlet]]
mean = 82.0
amplitude = 8.0
phase = 0.5
normal = [0.0, 0.0, 1.0]

[[outlet]]
mean = 80.0
amplitude = 0.0
phase = 0.0
`
	dir, err := ioutil.TempDir("", "hemolb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	fname := filepath.Join(dir, "inout.toml")
	if err := ioutil.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	spec, err := ReadPressureFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Inlet) != 1 || len(spec.Outlet) != 1 {
		t.Fatalf("got %d inlets and %d outlets, want 1 and 1", len(spec.Inlet), len(spec.Outlet))
	}
	if spec.Inlet[0].Mean != 82.0 || spec.Inlet[0].Amplitude != 8.0 || spec.Inlet[0].Phase != 0.5 {
		t.Errorf("inlet parsed as %+v", spec.Inlet[0])
	}
	if len(spec.Inlet[0].Normal) != 3 || spec.Inlet[0].Normal[2] != 1.0 {
		t.Errorf("inlet normal parsed as %v", spec.Inlet[0].Normal)
	}
	if err := spec.Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}

	b := NewBoundaryDriver(spec, UnitConverter{Tau: 0.6, VoxelSize: 1e-4, Period: 1000})
	if !b.HasInletNormals {
		t.Error("normals present but not available")
	}
}

func TestPressureSpecValidate(t *testing.T) {
	cases := []struct {
		name string
		spec PressureSpec
	}{
		{"no openings", PressureSpec{}},
		{"amplitude exceeds mean", PressureSpec{
			Inlet: []PressureCondition{{Mean: 10.0, Amplitude: 20.0}},
		}},
		{"bad normal", PressureSpec{
			Inlet: []PressureCondition{{Mean: 80.0, Normal: []float64{0, 1}}},
		}},
	}
	for _, c := range cases {
		if err := c.spec.Validate(); err == nil {
			t.Errorf("%s: invalid spec accepted", c.name)
		}
	}
}

// Converting the sinusoid parameters to physical units and back is the
// identity when the resolution does not change in between.
func TestBoundaryUnitRoundTrip(t *testing.T) {
	u := UnitConverter{Tau: 0.6, VoxelSize: 1e-4, Period: 1000}
	spec := &PressureSpec{
		Inlet:  []PressureCondition{{Mean: 82.0, Amplitude: 8.0}},
		Outlet: []PressureCondition{{Mean: 80.0, Amplitude: 1.0}},
	}
	b := NewBoundaryDriver(spec, u)
	avg, amp := b.inletAvg[0], b.inletAmp[0]
	b.toPhysicalUnits(u)
	if different(b.inletAvg[0], 82.0, 1e-12) || different(b.inletAmp[0], 8.0, 1e-12) {
		t.Errorf("physical form (%v, %v), want (82, 8)", b.inletAvg[0], b.inletAmp[0])
	}
	b.toLatticeUnits(u)
	if different(b.inletAvg[0], avg, 1e-12) || different(b.inletAmp[0], amp, 1e-12) {
		t.Errorf("round trip (%v, %v), want (%v, %v)", b.inletAvg[0], b.inletAmp[0], avg, amp)
	}
}
