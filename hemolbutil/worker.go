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

package hemolbutil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vascularmodel/hemolb"
	"github.com/vascularmodel/hemolb/comm"
)

// JobSpec assigns one rank of a distributed simulation to a worker.
type JobSpec struct {
	Rank      int
	MeshAddrs []string // distribution-exchange address of every rank

	Part     *hemolb.Partition
	Pressure *hemolb.PressureSpec

	StepsPerCycle, Cycles, MaxRestarts int
	VoxelSize                          float64
}

// JobResult carries a finished rank's observables back to the
// coordinator. The reduced global values are meaningful on rank 0.
type JobResult struct {
	Rank, Restarts, Steps int

	MinPressure, MaxPressure float64 // mmHg
	MinVelocity, MaxVelocity float64 // m/s
	MinStress, MaxStress     float64 // Pa

	PeakInletVelocity    []float64 // m/s
	AverageInletVelocity []float64 // m/s
}

// Worker runs simulation ranks on behalf of a coordinating process. It
// should not be interacted with directly, but it is exported to meet
// RPC requirements.
type Worker struct{}

// Simulate runs one rank of a distributed simulation to completion. It
// meets the requirements for use with rpc.Call.
func (s *Worker) Simulate(spec *JobSpec, result *JobResult) error {
	logger.WithFields(logrus.Fields{
		"rank":  spec.Rank,
		"sites": spec.Part.SiteCount,
	}).Info("worker starting rank")

	mesh, err := comm.NewTCP(spec.Rank, spec.MeshAddrs)
	if err != nil {
		return err
	}
	defer mesh.Close()

	d, err := hemolb.NewDomain(spec.Part, spec.Pressure, mesh,
		spec.StepsPerCycle, spec.VoxelSize, spec.MaxRestarts)
	if err != nil {
		return err
	}
	var logw io.Writer
	if spec.Rank == 0 {
		logw = os.Stdout
	}
	sim := &hemolb.Simulation{Domain: d, StepFuncs: StepFuncs(spec.Cycles, logw)}
	if err := sim.Init(); err != nil {
		return err
	}
	if err := sim.Run(); err != nil {
		return err
	}

	result.Rank = spec.Rank
	result.Restarts = d.Restarts()
	result.Steps = d.Timings.Steps
	result.MinPressure = d.MinPhysicalPressure()
	result.MaxPressure = d.MaxPhysicalPressure()
	result.MinVelocity = d.MinPhysicalVelocity()
	result.MaxVelocity = d.MaxPhysicalVelocity()
	result.MinStress = d.MinPhysicalStress()
	result.MaxStress = d.MaxPhysicalStress()
	result.PeakInletVelocity = d.Obs.PeakInletVelocity
	result.AverageInletVelocity = d.Obs.AverageInletVelocity
	return nil
}

// Exit shuts down the worker. It meets the requirements for use with
// rpc.Call.
func (s *Worker) Exit(_, _ *comm.Empty) error {
	os.Exit(0)
	return nil
}

// WorkerListen starts accepting simulation assignments on the control
// port. It is a top-level function rather than a method to avoid
// problems with RPC registration.
func WorkerListen(controlPort string) error {
	if err := rpc.Register(&Worker{}); err != nil {
		return err
	}
	rpc.HandleHTTP()
	l, err := net.Listen("tcp", ":"+controlPort)
	if err != nil {
		return err
	}
	logger.WithField("port", controlPort).Info("hemolb worker listening")
	return http.Serve(l, nil)
}

// meshHost strips any ssh user prefix from a worker address.
func meshHost(addr string) string {
	if i := strings.Index(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

// runCluster distributes the simulation over one ssh-spawned worker
// per rank and reports rank 0's reduced observables.
func runCluster(cfg *Cfg, grid *hemolb.VoxelGrid, spec *hemolb.PressureSpec, workers []string) error {
	if len(workers) == 1 && workers[0] == "PBS" {
		// Scheduled through a batch system: take the node list from it.
		var err error
		if workers, err = comm.PBSNodes(); err != nil {
			return err
		}
	}
	parts, err := grid.Partition(len(workers))
	if err != nil {
		return err
	}

	cluster := comm.NewCluster(
		cfg.GetString("WorkerCommand"),
		cfg.GetString("WorkerLogDir"),
		cfg.GetString("ControlPort"))
	if err := cluster.Start(workers); err != nil {
		return err
	}
	defer cluster.Shutdown("Worker.Exit")

	meshPort := cfg.GetString("MeshPort")
	meshAddrs := make([]string, len(workers))
	for i, addr := range workers {
		meshAddrs[i] = meshHost(addr) + ":" + meshPort
	}

	results := make([]JobResult, len(workers))
	calls := make([]*rpc.Call, len(workers))
	for r := range workers {
		calls[r] = cluster.Go(r, "Worker.Simulate", &JobSpec{
			Rank:          r,
			MeshAddrs:     meshAddrs,
			Part:          parts[r],
			Pressure:      spec,
			StepsPerCycle: cfg.GetInt("StepsPerCycle"),
			Cycles:        cfg.GetInt("Cycles"),
			MaxRestarts:   cfg.GetInt("MaxRestarts"),
			VoxelSize:     cfg.GetFloat64("VoxelSize"),
		}, &results[r])
	}
	for r, call := range calls {
		<-call.Done
		if call.Error != nil {
			return fmt.Errorf("hemolb: rank %d failed: %v", r, call.Error)
		}
	}

	root := results[0]
	logger.WithFields(logrus.Fields{
		"ranks":    len(workers),
		"restarts": root.Restarts,
		"steps":    root.Steps,
	}).Info("distributed simulation finished")
	logger.WithFields(logrus.Fields{
		"minPressure_mmHg": root.MinPressure,
		"maxPressure_mmHg": root.MaxPressure,
		"minVelocity_m/s":  root.MinVelocity,
		"maxVelocity_m/s":  root.MaxVelocity,
		"minStress_Pa":     root.MinStress,
		"maxStress_Pa":     root.MaxStress,
	}).Info("flow field extrema")
	for i := range root.PeakInletVelocity {
		logger.WithFields(logrus.Fields{
			"inlet":       i,
			"peak_m/s":    root.PeakInletVelocity[i],
			"average_m/s": root.AverageInletVelocity[i],
		}).Info("inlet velocities")
	}
	return nil
}
