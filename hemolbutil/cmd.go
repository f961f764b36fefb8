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

// Package hemolbutil holds the configuration handling and command tree
// shared by the hemolb command-line interfaces.
package hemolbutil

import (
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vascularmodel/hemolb"
)

// Cfg holds configuration information.
type Cfg struct {
	*viper.Viper

	// inputFiles holds the names of the configuration options that are
	// input files.
	inputFiles []string

	Root, versionCmd, runCmd, workerCmd *cobra.Command
}

// InputFiles returns the names of the configuration options that are
// input files.
func (cfg *Cfg) InputFiles() []string { return cfg.inputFiles }

var logger = logrus.StandardLogger()

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// InitializeConfig creates the command tree and binds every
// configuration option to it. Configuration can be changed with a TOML
// configuration file (--config), with command-line arguments, or with
// environment variables in the format 'HEMOLB_var'.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "hemolb",
		Short: "A lattice-Boltzmann blood flow solver.",
		Long: `HemoLB simulates pulsatile incompressible blood flow in sparse
three-dimensional vascular geometries with a distributed
lattice-Boltzmann method. Use the subcommands specified below to access
the solver functionality.

Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the
format 'HEMOLB_var' where 'var' is the name of the variable to be set.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setConfig(cfg)
		},
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of HemoLB.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("HemoLB v%s\n", hemolb.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a simulation.",
		Long: `run advances a pulsatile flow simulation for the configured number
of cardiac cycles. With an empty Workers list all ranks run inside this
process; otherwise one worker process is started per entry in Workers
and the simulation is distributed across them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cfg, os.Stdout)
		},
		DisableAutoGenTag: true,
	}

	cfg.workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run as a cluster worker.",
		Long: `worker listens for simulation assignments from a coordinating
hemolb run process. It is normally started over ssh by the coordinator
rather than by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return WorkerListen(cfg.GetString("ControlPort"))
		},
		DisableAutoGenTag: true,
	}

	cfg.Root.AddCommand(cfg.versionCmd)
	cfg.Root.AddCommand(cfg.runCmd)
	cfg.Root.AddCommand(cfg.workerCmd)

	// The configuration options available to HemoLB.
	options := []struct {
		name, usage string
		defaultVal  interface{}
		isInputFile bool
		flagsets    []*pflag.FlagSet
	}{
		{
			name:        "config",
			usage:       `config specifies the configuration file location.`,
			defaultVal:  "",
			isInputFile: true,
			flagsets:    []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name:       "StepsPerCycle",
			usage:      `StepsPerCycle is the number of lattice timesteps per cardiac cycle.`,
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "Cycles",
			usage:      `Cycles is the number of cardiac cycles to simulate.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "VoxelSize",
			usage:      `VoxelSize is the lattice spacing in metres.`,
			defaultVal: 1e-4,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "PressureFile",
			usage: `PressureFile is the path to the TOML table of inlet and outlet
pressure sinusoids, in mmHg.`,
			defaultVal:  "",
			isInputFile: true,
			flagsets:    []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "MaxRestarts",
			usage: `MaxRestarts bounds the number of period doublings attempted when
the simulation goes unstable before giving up.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "Ranks",
			usage:      `Ranks is the number of domain partitions to run in-process.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `Workers lists the ssh addresses of remote worker hosts, one rank
per host. When empty the simulation runs inside this process. The
single entry "PBS" takes the host list from $PBS_NODEFILE instead.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "WorkerCommand",
			usage:      `WorkerCommand is the command used to start a remote worker.`,
			defaultVal: "hemolb worker",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "WorkerLogDir",
			usage:      `WorkerLogDir is the directory remote worker logs are written to.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "MeshPort",
			usage:      `MeshPort is the port the worker ranks exchange distributions on.`,
			defaultVal: "6060",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "ControlPort",
			usage:      `ControlPort is the port workers accept assignments on.`,
			defaultVal: "6061",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.workerCmd.Flags()},
		},
		{
			name: "Channel.NX",
			usage: `Channel.NX is the benchmark channel width in voxels. The built-in
channel geometry stands in for an external vascular geometry.`,
			defaultVal: 9,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "Channel.NY",
			usage:      `Channel.NY is the benchmark channel height in voxels.`,
			defaultVal: 9,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name:       "Channel.NZ",
			usage:      `Channel.NZ is the benchmark channel length in voxels.`,
			defaultVal: 33,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("HEMOLB")
	cfg.AutomaticEnv()

	for _, option := range options {
		if option.isInputFile {
			cfg.inputFiles = append(cfg.inputFiles, option.name)
		}
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.String(option.name, v, option.usage)
			case []string:
				set.StringSlice(option.name, v, option.usage)
			case bool:
				set.Bool(option.name, v, option.usage)
			case int:
				set.Int(option.name, v, option.usage)
			case float64:
				set.Float64(option.name, v, option.usage)
			default:
				panic(fmt.Errorf("invalid argument type: %T", option.defaultVal))
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig(cfg *Cfg) error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("hemolb: problem reading configuration file: %v", err)
		}
	}
	return nil
}
