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

import "github.com/vascularmodel/hemolb/d3q15"

// Physical constants for blood at body temperature and the reference
// state the pressure scale is anchored to.
const (
	// BloodDensity is the density of blood [kg/m³].
	BloodDensity = 1000.0

	// BloodViscosity is the dynamic viscosity of blood [Pa·s].
	BloodViscosity = 0.004

	// PulsatilePeriod is the duration of one cardiac cycle [s],
	// at a resting heart rate of 70 beats per minute.
	PulsatilePeriod = 60.0 / 70.0

	// ReferencePressure is the pressure corresponding to unit lattice
	// density [mmHg].
	ReferencePressure = 80.0

	// MmHgToPascal converts pressures from mmHg to Pa.
	MmHgToPascal = 133.3223874
)

// UnitConverter translates between physical units (SI, with pressures
// in mmHg) and lattice units. Each conversion is a pure function of its
// argument and the three scale parameters: the relaxation time, the
// voxel edge length and the number of timesteps per cardiac cycle.
type UnitConverter struct {
	Tau       float64
	VoxelSize float64 // metres
	Period    int     // timesteps per cardiac cycle
}

// latticeLength is the physical length of one cardiac cycle of lattice
// time advected at one voxel per step [m].
func (u UnitConverter) latticeLength() float64 {
	return float64(u.Period) * u.VoxelSize
}

// latticeViscosity is the kinematic viscosity in lattice units,
// (tau - 1/2)/3.
func (u UnitConverter) latticeViscosity() float64 {
	return (u.Tau - 0.5) / 3.0
}

// PressureToLatticeUnits converts a pressure in mmHg to lattice units.
func (u UnitConverter) PressureToLatticeUnits(pressure float64) float64 {
	scale := PulsatilePeriod / u.latticeLength()
	return d3q15.Cs2 + (pressure-ReferencePressure)*MmHgToPascal*scale*scale/BloodDensity
}

// PressureToPhysicalUnits converts a lattice pressure to mmHg.
func (u UnitConverter) PressureToPhysicalUnits(pressure float64) float64 {
	scale := u.latticeLength() / PulsatilePeriod
	return ReferencePressure + (pressure/d3q15.Cs2-1.0)*d3q15.Cs2*BloodDensity*scale*scale/MmHgToPascal
}

// PressureGradToLatticeUnits converts a pressure difference in mmHg to
// lattice units.
func (u UnitConverter) PressureGradToLatticeUnits(pressureGrad float64) float64 {
	scale := PulsatilePeriod / u.latticeLength()
	return pressureGrad * MmHgToPascal * scale * scale / BloodDensity
}

// PressureGradToPhysicalUnits converts a lattice pressure difference to
// mmHg.
func (u UnitConverter) PressureGradToPhysicalUnits(pressureGrad float64) float64 {
	scale := u.latticeLength() / PulsatilePeriod
	return pressureGrad * BloodDensity * scale * scale / MmHgToPascal
}

// VelocityToLatticeUnits converts a velocity in m/s to lattice units.
func (u UnitConverter) VelocityToLatticeUnits(velocity float64) float64 {
	return velocity * u.latticeViscosity() * u.VoxelSize / (BloodViscosity / BloodDensity)
}

// VelocityToPhysicalUnits converts a lattice velocity to m/s.
func (u UnitConverter) VelocityToPhysicalUnits(velocity float64) float64 {
	return velocity * (BloodViscosity / BloodDensity) / (u.latticeViscosity() * u.VoxelSize)
}

// StressToLatticeUnits converts a stress in Pa to lattice units.
func (u UnitConverter) StressToLatticeUnits(stress float64) float64 {
	nuDx := u.latticeViscosity() * u.VoxelSize
	return stress * BloodDensity / (BloodViscosity * BloodViscosity) * nuDx * nuDx
}

// StressToPhysicalUnits converts a lattice stress to Pa.
func (u UnitConverter) StressToPhysicalUnits(stress float64) float64 {
	nuDx := u.latticeViscosity() * u.VoxelSize
	return stress * BloodViscosity * BloodViscosity / (BloodDensity * nuDx * nuDx)
}

// TauFromPhysics returns the relaxation time that makes the lattice
// kinematic viscosity match blood at the given temporal and spatial
// resolution. The result is always greater than 1/2.
func TauFromPhysics(period int, voxelSize float64) float64 {
	return 0.5 + (PulsatilePeriod * BloodViscosity / BloodDensity) /
		(d3q15.Cs2 * float64(period) * voxelSize * voxelSize)
}
