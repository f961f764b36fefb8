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

	"github.com/BurntSushi/toml"
	"github.com/vascularmodel/hemolb/d3q15"
)

// PressureCondition is the sinusoidal pressure prescription for one
// inlet or outlet, in physical units.
type PressureCondition struct {
	Mean      float64   `toml:"mean"`      // mmHg
	Amplitude float64   `toml:"amplitude"` // mmHg
	Phase     float64   `toml:"phase"`     // radians
	Normal    []float64 `toml:"normal"`    // optional unit normal, inlets only
}

// PressureSpec is the full set of inlet and outlet pressure conditions
// for a simulation.
type PressureSpec struct {
	Inlet  []PressureCondition `toml:"inlet"`
	Outlet []PressureCondition `toml:"outlet"`
}

// ReadPressureFile parses a TOML pressure table.
func ReadPressureFile(filename string) (*PressureSpec, error) {
	spec := new(PressureSpec)
	if _, err := toml.DecodeFile(filename, spec); err != nil {
		return nil, fmt.Errorf("hemolb: reading pressure file %s: %v", filename, err)
	}
	return spec, nil
}

// Validate checks the conditions a simulation cannot be constructed
// without: at least one opening, amplitudes that keep the prescribed
// pressure positive, and well-formed normals.
func (s *PressureSpec) Validate() error {
	if len(s.Inlet)+len(s.Outlet) == 0 {
		return fmt.Errorf("hemolb: the pressure specification contains no inlets or outlets")
	}
	for i, c := range s.Inlet {
		if math.Abs(c.Amplitude) > c.Mean {
			return fmt.Errorf("hemolb: inlet %d: amplitude %g exceeds mean pressure %g", i, c.Amplitude, c.Mean)
		}
		if len(c.Normal) != 0 && len(c.Normal) != 3 {
			return fmt.Errorf("hemolb: inlet %d: normal must have 3 components, not %d", i, len(c.Normal))
		}
	}
	for i, c := range s.Outlet {
		if math.Abs(c.Amplitude) > c.Mean {
			return fmt.Errorf("hemolb: outlet %d: amplitude %g exceeds mean pressure %g", i, c.Amplitude, c.Mean)
		}
	}
	return nil
}

// BoundaryDriver owns the per-step density targets for every inlet and
// outlet. The collision kernels for boundary site classes read the
// InletDensity and OutletDensity slices through references installed at
// construction; the driver mutates them between steps only.
type BoundaryDriver struct {
	InletDensity  []float64 // current lattice density per inlet
	OutletDensity []float64 // current lattice density per outlet

	inletAvg, inletAmp, inletPhs    []float64
	outletAvg, outletAmp, outletPhs []float64

	InletNormal     [][3]float64
	HasInletNormals bool
}

// NewBoundaryDriver converts the physical pressure prescriptions into
// lattice density sinusoid parameters. Mean pressures convert as
// pressures; amplitudes convert as pressure differences.
func NewBoundaryDriver(spec *PressureSpec, u UnitConverter) *BoundaryDriver {
	b := &BoundaryDriver{
		InletDensity:  make([]float64, len(spec.Inlet)),
		OutletDensity: make([]float64, len(spec.Outlet)),
		inletAvg:      make([]float64, len(spec.Inlet)),
		inletAmp:      make([]float64, len(spec.Inlet)),
		inletPhs:      make([]float64, len(spec.Inlet)),
		outletAvg:     make([]float64, len(spec.Outlet)),
		outletAmp:     make([]float64, len(spec.Outlet)),
		outletPhs:     make([]float64, len(spec.Outlet)),
	}
	for i, c := range spec.Inlet {
		b.inletAvg[i] = u.PressureToLatticeUnits(c.Mean) / d3q15.Cs2
		b.inletAmp[i] = u.PressureGradToLatticeUnits(c.Amplitude) / d3q15.Cs2
		b.inletPhs[i] = c.Phase
	}
	for i, c := range spec.Outlet {
		b.outletAvg[i] = u.PressureToLatticeUnits(c.Mean) / d3q15.Cs2
		b.outletAmp[i] = u.PressureGradToLatticeUnits(c.Amplitude) / d3q15.Cs2
		b.outletPhs[i] = c.Phase
	}

	b.HasInletNormals = true
	for _, c := range spec.Inlet {
		if len(c.Normal) != 3 {
			b.HasInletNormals = false
			break
		}
	}
	if len(spec.Inlet) == 0 {
		b.HasInletNormals = false
	}
	if b.HasInletNormals {
		b.InletNormal = make([][3]float64, len(spec.Inlet))
		for i, c := range spec.Inlet {
			copy(b.InletNormal[i][:], c.Normal)
		}
	}
	return b
}

// Inlets returns the number of inlets.
func (b *BoundaryDriver) Inlets() int { return len(b.InletDensity) }

// Outlets returns the number of outlets.
func (b *BoundaryDriver) Outlets() int { return len(b.OutletDensity) }

// Update samples the pulsatile sinusoids for the given timestep and
// stores the results where the boundary collision kernels read them.
func (b *BoundaryDriver) Update(period, timeStep int) {
	w := 2.0 * math.Pi / float64(period)
	for i := range b.InletDensity {
		b.InletDensity[i] = b.inletAvg[i] + b.inletAmp[i]*math.Cos(w*float64(timeStep)+b.inletPhs[i])
	}
	for i := range b.OutletDensity {
		b.OutletDensity[i] = b.outletAvg[i] + b.outletAmp[i]*math.Cos(w*float64(timeStep)+b.outletPhs[i])
	}
}

// MeanStartDensity returns the density the lattice is initialised to:
// the mean over outlets of the sinusoid minimum. With no outlets the
// reference density is used.
func (b *BoundaryDriver) MeanStartDensity() float64 {
	if len(b.OutletDensity) == 0 {
		return 1.0
	}
	density := 0.0
	for i := range b.OutletDensity {
		density += b.outletAvg[i] - b.outletAmp[i]
	}
	return density / float64(len(b.OutletDensity))
}

// toPhysicalUnits converts the sinusoid parameters back into physical
// pressures, in preparation for a change of temporal resolution that
// invalidates the lattice-unit values.
func (b *BoundaryDriver) toPhysicalUnits(u UnitConverter) {
	for i := range b.inletAvg {
		b.inletAvg[i] = u.PressureToPhysicalUnits(b.inletAvg[i] * d3q15.Cs2)
		b.inletAmp[i] = u.PressureGradToPhysicalUnits(b.inletAmp[i] * d3q15.Cs2)
	}
	for i := range b.outletAvg {
		b.outletAvg[i] = u.PressureToPhysicalUnits(b.outletAvg[i] * d3q15.Cs2)
		b.outletAmp[i] = u.PressureGradToPhysicalUnits(b.outletAmp[i] * d3q15.Cs2)
	}
}

// toLatticeUnits is the inverse of toPhysicalUnits under the (possibly
// changed) unit converter.
func (b *BoundaryDriver) toLatticeUnits(u UnitConverter) {
	for i := range b.inletAvg {
		b.inletAvg[i] = u.PressureToLatticeUnits(b.inletAvg[i]) / d3q15.Cs2
		b.inletAmp[i] = u.PressureGradToLatticeUnits(b.inletAmp[i]) / d3q15.Cs2
	}
	for i := range b.outletAvg {
		b.outletAvg[i] = u.PressureToLatticeUnits(b.outletAvg[i]) / d3q15.Cs2
		b.outletAmp[i] = u.PressureGradToLatticeUnits(b.outletAmp[i]) / d3q15.Cs2
	}
}
