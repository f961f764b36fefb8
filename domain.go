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

// Package hemolb is a distributed, time-stepped lattice-Boltzmann
// solver for incompressible blood flow in sparse three-dimensional
// vascular geometries. The spatial domain is partitioned across
// cooperating ranks; each rank advances its fluid sites through
// collide/stream/boundary-condition updates while exchanging
// post-collision distributions with its neighbours.
package hemolb

import (
	"fmt"
	"math"
	"time"

	"github.com/vascularmodel/hemolb/comm"
	"github.com/vascularmodel/hemolb/d3q15"
	"gonum.org/v1/gonum/floats"
)

// SiteType is the collision class of a fluid site.
type SiteType int

// The six collision classes, in the fixed order sites are sorted into
// within each of the inner and inter regions.
const (
	MidFluidType SiteType = iota
	WallType
	InletType
	OutletType
	InletWallType
	OutletWallType

	CollisionClasses = 6
)

// SiteDirection identifies one distribution slot: a local site index
// and a stencil direction.
type SiteDirection struct {
	Site, Dir int
}

// Neighbor describes the distribution exchange with one adjacent rank.
// Send lists the (site, direction) pairs whose post-collision values
// leave this rank; Recv lists the slots the incoming values fill, in
// the order the remote rank's send list produces them. The two sides
// of each pairing have equal lengths.
type Neighbor struct {
	Rank int
	Send []SiteDirection
	Recv []SiteDirection
}

// Partition is the description of one rank's share of the lattice, as
// produced by the geometry loader. Sites are densely numbered with the
// inner region (no remote dependencies) first, and each region sorted
// by collision class.
type Partition struct {
	SiteCount      int // total fluid sites on this rank
	InnerSiteCount int // sites with no remote stencil dependency

	InnerCounts [CollisionClasses]int
	InterCounts [CollisionClasses]int

	// BoundaryID maps each site to the inlet or outlet it belongs to;
	// -1 for mid-fluid and wall sites.
	BoundaryID []int

	// Stream maps each (site, direction) pair, flattened as
	// site*NumVectors+direction, to the flat index in the new
	// distribution buffer its post-collision value streams to. Targets
	// beyond SiteCount*NumVectors lie in the shared tail gathered into
	// neighbour sends.
	Stream []int

	// SharedCount is the number of shared-tail slots; it equals the sum
	// of the neighbour send list lengths.
	SharedCount int

	Neighbors []Neighbor

	InletCount, OutletCount int

	// GlobalSite optionally maps local site indices to global site
	// numbers, for cross-rank comparisons and debugging output.
	GlobalSite []int
}

// SiteClass returns the collision class of the given site index.
func (p *Partition) SiteClass(site int) SiteType {
	offset := 0
	counts := &p.InnerCounts
	if site >= p.InnerSiteCount {
		offset = p.InnerSiteCount
		counts = &p.InterCounts
	}
	for c := 0; c < CollisionClasses; c++ {
		offset += counts[c]
		if site < offset {
			return SiteType(c)
		}
	}
	return SiteType(CollisionClasses - 1)
}

// Check validates the partition against the invariants the step loop
// depends on. A mismatch here would corrupt the buffer-swap invariant,
// so construction fails rather than continuing.
func (p *Partition) Check() error {
	innerSum, interSum := 0, 0
	for c := 0; c < CollisionClasses; c++ {
		innerSum += p.InnerCounts[c]
		interSum += p.InterCounts[c]
	}
	if innerSum != p.InnerSiteCount {
		return fmt.Errorf("hemolb: inner class counts sum to %d, want %d", innerSum, p.InnerSiteCount)
	}
	if innerSum+interSum != p.SiteCount {
		return fmt.Errorf("hemolb: class counts sum to %d, want %d sites", innerSum+interSum, p.SiteCount)
	}
	if len(p.BoundaryID) != p.SiteCount {
		return fmt.Errorf("hemolb: boundary id table has %d entries, want %d", len(p.BoundaryID), p.SiteCount)
	}
	if len(p.Stream) != p.SiteCount*d3q15.NumVectors {
		return fmt.Errorf("hemolb: stream table has %d entries, want %d",
			len(p.Stream), p.SiteCount*d3q15.NumVectors)
	}
	limit := p.SiteCount*d3q15.NumVectors + p.SharedCount
	for i, target := range p.Stream {
		if target < 0 || target >= limit {
			return fmt.Errorf("hemolb: stream target %d for slot %d outside buffer of %d", target, i, limit)
		}
	}
	sendTotal := 0
	for _, nb := range p.Neighbors {
		sendTotal += len(nb.Send)
		for _, sd := range append(append([]SiteDirection(nil), nb.Send...), nb.Recv...) {
			if sd.Site < 0 || sd.Site >= p.SiteCount || sd.Dir < 0 || sd.Dir >= d3q15.NumVectors {
				return fmt.Errorf("hemolb: exchange slot (%d,%d) with rank %d out of range",
					sd.Site, sd.Dir, nb.Rank)
			}
		}
	}
	if sendTotal != p.SharedCount {
		return fmt.Errorf("hemolb: neighbour send lists cover %d shared slots, want %d", sendTotal, p.SharedCount)
	}
	for site, id := range p.BoundaryID {
		switch p.SiteClass(site) {
		case InletType, InletWallType:
			if id < 0 || id >= p.InletCount {
				return fmt.Errorf("hemolb: site %d has inlet id %d, have %d inlets", site, id, p.InletCount)
			}
		case OutletType, OutletWallType:
			if id < 0 || id >= p.OutletCount {
				return fmt.Errorf("hemolb: site %d has outlet id %d, have %d outlets", site, id, p.OutletCount)
			}
		}
	}
	return nil
}

// LbmParameters holds the relaxation parameters shared by all collision
// kernels.
type LbmParameters struct {
	Tau             float64
	Omega           float64 // -1/tau
	StressParameter float64 // (1 - 1/(2 tau)) / sqrt(2)
}

// Timings accumulates wall time per step phase.
type Timings struct {
	LB    time.Duration // collision and streaming
	Send  time.Duration // posting neighbour sends
	Wait  time.Duration // waiting on exchange completion
	Steps int
}

// Domain holds the full per-rank state of a simulation: the two
// distribution buffers, the partition description, the relaxation
// parameters, the boundary driver and the running observables. All
// mutation happens through the manipulator chain run by Simulation.
type Domain struct {
	FOld, FNew []float64

	Part   *Partition
	Params LbmParameters
	Units  UnitConverter
	Bounds *BoundaryDriver
	Obs    *Observables
	Comm   comm.Communicator

	VoxelSize float64
	Period    int // timesteps per cardiac cycle

	// TimeStep counts 1..Period within the current cycle; Cycle counts
	// completed cycles.
	TimeStep, Cycle int

	// Done signals the run loop to stop.
	Done bool

	Timings Timings

	// MaxRestarts bounds the number of period doublings attempted
	// before the simulation is abandoned as unrecoverable.
	MaxRestarts int

	restarts     int
	unstableHint bool

	colliders [CollisionClasses]Collider

	sendBufs, recvBufs [][]float64
	tailOffset         []int
}

const tagDistributions = 0

// NewDomain validates the partition and configuration and builds the
// per-rank state: distribution buffers sized for the shared tail,
// relaxation parameters derived from the resolution, the boundary
// driver in lattice units, and the exchange buffers for every
// neighbour. The lattice starts from the zero-velocity equilibrium at
// the mean outlet density.
func NewDomain(part *Partition, spec *PressureSpec, c comm.Communicator,
	period int, voxelSize float64, maxRestarts int) (*Domain, error) {

	if period <= 0 {
		return nil, fmt.Errorf("hemolb: non-positive steps per cycle %d", period)
	}
	if voxelSize <= 0 {
		return nil, fmt.Errorf("hemolb: non-positive voxel size %g", voxelSize)
	}
	if maxRestarts < 0 {
		return nil, fmt.Errorf("hemolb: negative restart bound %d", maxRestarts)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := part.Check(); err != nil {
		return nil, err
	}
	if part.InletCount > len(spec.Inlet) {
		return nil, fmt.Errorf("hemolb: partition references %d inlets, pressure file has %d",
			part.InletCount, len(spec.Inlet))
	}
	if part.OutletCount > len(spec.Outlet) {
		return nil, fmt.Errorf("hemolb: partition references %d outlets, pressure file has %d",
			part.OutletCount, len(spec.Outlet))
	}

	d := &Domain{
		Part:        part,
		Comm:        c,
		VoxelSize:   voxelSize,
		Period:      period,
		MaxRestarts: maxRestarts,
	}
	d.RecalculateTauViscosityOmega()
	if d.Params.Tau <= 0.5 {
		return nil, fmt.Errorf("hemolb: relaxation time %g is not above 1/2", d.Params.Tau)
	}
	d.Bounds = NewBoundaryDriver(spec, d.Units)
	d.Obs = NewObservables(len(spec.Inlet))

	n := part.SiteCount*d3q15.NumVectors + part.SharedCount
	d.FOld = make([]float64, n)
	d.FNew = make([]float64, n)

	d.initCollisions()

	d.sendBufs = make([][]float64, len(part.Neighbors))
	d.recvBufs = make([][]float64, len(part.Neighbors))
	d.tailOffset = make([]int, len(part.Neighbors))
	offset := 0
	for i, nb := range part.Neighbors {
		d.sendBufs[i] = make([]float64, len(nb.Send))
		d.recvBufs[i] = make([]float64, len(nb.Recv))
		d.tailOffset[i] = offset
		offset += len(nb.Send)
	}

	d.SetInitialConditions()
	return d, nil
}

// RecalculateTauViscosityOmega rederives the relaxation parameters and
// the unit converter from the current temporal and spatial resolution.
// It must be called after any change to the period or voxel size.
func (d *Domain) RecalculateTauViscosityOmega() {
	tau := TauFromPhysics(d.Period, d.VoxelSize)
	d.Params.Tau = tau
	d.Params.Omega = -1.0 / tau
	d.Params.StressParameter = (1.0 - 1.0/(2.0*tau)) / math.Sqrt2
	d.Units = UnitConverter{Tau: tau, VoxelSize: d.VoxelSize, Period: d.Period}
}

// SetInitialConditions writes the zero-velocity equilibrium at the mean
// outlet density into both distribution buffers.
func (d *Domain) SetInitialConditions() {
	density := d.Bounds.MeanStartDensity()
	var fEq [d3q15.NumVectors]float64
	d3q15.CalculateFeq(density, 0.0, 0.0, 0.0, fEq[:])
	for i := 0; i < d.Part.SiteCount; i++ {
		copy(d.FOld[i*d3q15.NumVectors:(i+1)*d3q15.NumVectors], fEq[:])
		copy(d.FNew[i*d3q15.NumVectors:(i+1)*d3q15.NumVectors], fEq[:])
	}
}

// swap exchanges the roles of the old and new distribution buffers.
// The slice headers are exchanged, so no site data is copied or lost.
func (d *Domain) swap() {
	d.FOld, d.FNew = d.FNew, d.FOld
}

// TotalDensity returns the sum of every distribution value on this
// rank, which is the total mass of the local fluid.
func (d *Domain) TotalDensity() float64 {
	return floats.Sum(d.FOld[:d.Part.SiteCount*d3q15.NumVectors])
}

// ProbeFlowField converts a visualisation probe's normalised density
// and stress readings into physical pressure [mmHg] and stress [Pa].
func (d *Domain) ProbeFlowField(probeDensity, probeStress,
	densityThresholdMin, densityThresholdMinMaxInv, stressThresholdMaxInv float64) (pressure, stress float64) {

	density := densityThresholdMin + probeDensity/densityThresholdMinMaxInv
	pressure = d.Units.PressureToPhysicalUnits(density * d3q15.Cs2)
	stress = d.Units.StressToPhysicalUnits(probeStress / stressThresholdMaxInv)
	return pressure, stress
}

// Physical-unit accessors over the reduced extrema.

func (d *Domain) MinPhysicalPressure() float64 {
	return d.Units.PressureToPhysicalUnits(d.Obs.MinDensity * d3q15.Cs2)
}
func (d *Domain) MaxPhysicalPressure() float64 {
	return d.Units.PressureToPhysicalUnits(d.Obs.MaxDensity * d3q15.Cs2)
}
func (d *Domain) MinPhysicalVelocity() float64 {
	return d.Units.VelocityToPhysicalUnits(d.Obs.MinVelocity)
}
func (d *Domain) MaxPhysicalVelocity() float64 {
	return d.Units.VelocityToPhysicalUnits(d.Obs.MaxVelocity)
}
func (d *Domain) MinPhysicalStress() float64 {
	return d.Units.StressToPhysicalUnits(d.Obs.MinStress)
}
func (d *Domain) MaxPhysicalStress() float64 {
	return d.Units.StressToPhysicalUnits(d.Obs.MaxStress)
}
