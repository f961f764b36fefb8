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
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/vascularmodel/hemolb"
	"github.com/vascularmodel/hemolb/comm"
)

// StepFuncs assembles the standard per-timestep manipulator chain: the
// cycle-start extrema reset, the pulsatile boundary update, the
// eight-phase lattice step, inlet
// statistics, the stability check, and the cycle-boundary reductions
// and termination.
func StepFuncs(cycles int, w io.Writer) []hemolb.DomainManipulator {
	funcs := []hemolb.DomainManipulator{
		hemolb.ResetExtrema(),
		hemolb.UpdateBoundaries(),
		hemolb.Step(),
		hemolb.UpdateInletVelocities(),
		hemolb.StabilityCheck(),
		hemolb.CycleReductions(),
		hemolb.RunCycles(cycles),
	}
	if w != nil {
		funcs = append(funcs, hemolb.RunEveryCycle(hemolb.Log(w)))
	}
	return funcs
}

// pressureSpec loads the configured pressure table, or falls back to a
// gentle pulse through the benchmark channel.
func pressureSpec(cfg *Cfg) (*hemolb.PressureSpec, error) {
	if f := cfg.GetString("PressureFile"); f != "" {
		return hemolb.ReadPressureFile(os.ExpandEnv(f))
	}
	return &hemolb.PressureSpec{
		Inlet: []hemolb.PressureCondition{{
			Mean:      80.1,
			Amplitude: 0.05,
			Phase:     0,
			Normal:    []float64{0, 0, 1},
		}},
		Outlet: []hemolb.PressureCondition{{
			Mean: 80.0,
		}},
	}, nil
}

// Run executes a simulation according to cfg, writing per-cycle status
// lines to w. With an empty Workers list all ranks run in-process;
// otherwise the simulation is distributed over ssh-spawned workers.
func Run(cfg *Cfg, w io.Writer) error {
	spec, err := pressureSpec(cfg)
	if err != nil {
		return err
	}
	grid := hemolb.ChannelGrid(
		cfg.GetInt("Channel.NX"), cfg.GetInt("Channel.NY"), cfg.GetInt("Channel.NZ"))

	workers, err := cast.ToStringSliceE(cfg.Get("Workers"))
	if err != nil {
		return fmt.Errorf("hemolb: parsing Workers: %v", err)
	}
	if len(workers) > 0 {
		return runCluster(cfg, grid, spec, workers)
	}

	period := cfg.GetInt("StepsPerCycle")
	cycles := cfg.GetInt("Cycles")
	voxelSize := cfg.GetFloat64("VoxelSize")
	maxRestarts := cfg.GetInt("MaxRestarts")
	ranks := cfg.GetInt("Ranks")

	parts, err := grid.Partition(ranks)
	if err != nil {
		return err
	}

	if ranks == 1 {
		d, err := hemolb.NewDomain(parts[0], spec, comm.Single{}, period, voxelSize, maxRestarts)
		if err != nil {
			return err
		}
		sim := &hemolb.Simulation{Domain: d, StepFuncs: StepFuncs(cycles, w)}
		if err := sim.Init(); err != nil {
			return err
		}
		if err := sim.Run(); err != nil {
			return err
		}
		summarize(d)
		return nil
	}

	comms := comm.NewGroup(ranks)
	domains := make([]*hemolb.Domain, ranks)
	errs := make([]error, ranks)
	var wg sync.WaitGroup
	wg.Add(ranks)
	for r := 0; r < ranks; r++ {
		go func(r int) {
			defer wg.Done()
			d, err := hemolb.NewDomain(parts[r], spec, comms[r], period, voxelSize, maxRestarts)
			if err != nil {
				errs[r] = err
				return
			}
			domains[r] = d
			var logw io.Writer
			if r == 0 {
				logw = w
			}
			sim := &hemolb.Simulation{Domain: d, StepFuncs: StepFuncs(cycles, logw)}
			if err := sim.Init(); err != nil {
				errs[r] = err
				return
			}
			errs[r] = sim.Run()
		}(r)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	summarize(domains[0])
	return nil
}

// summarize logs the globally reduced observables held by the root
// rank after the final cycle.
func summarize(d *hemolb.Domain) {
	logger.WithFields(logrus.Fields{
		"cycles":   d.Cycle,
		"period":   d.Period,
		"tau":      d.Params.Tau,
		"restarts": d.Restarts(),
		"steps":    d.Timings.Steps,
		"lbTime":   d.Timings.LB,
		"sendTime": d.Timings.Send,
		"waitTime": d.Timings.Wait,
	}).Info("simulation finished")
	logger.WithFields(logrus.Fields{
		"minPressure_mmHg": d.MinPhysicalPressure(),
		"maxPressure_mmHg": d.MaxPhysicalPressure(),
		"minVelocity_m/s":  d.MinPhysicalVelocity(),
		"maxVelocity_m/s":  d.MaxPhysicalVelocity(),
		"minStress_Pa":     d.MinPhysicalStress(),
		"maxStress_Pa":     d.MaxPhysicalStress(),
	}).Info("flow field extrema")
	for i := range d.Obs.PeakInletVelocity {
		logger.WithFields(logrus.Fields{
			"inlet":       i,
			"peak_m/s":    d.Obs.PeakInletVelocity[i],
			"average_m/s": d.Obs.AverageInletVelocity[i],
		}).Info("inlet velocities")
	}
}
