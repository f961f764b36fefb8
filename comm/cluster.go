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

package comm

import (
	"bufio"
	"fmt"
	"log"
	"net/rpc"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// Cluster manages a group of worker processes started over ssh, one
// per rank of a distributed simulation. The coordinator dials each
// worker's control port and directs it through RPC calls; the workers
// connect to each other separately through NewTCP.
type Cluster struct {
	command, logDir string
	controlPort     string
	clients         []*rpc.Client

	// StartupTime specifies how long a worker is expected to take to
	// initialize. The default is 1 minute.
	StartupTime time.Duration
}

// NewCluster creates a cluster whose workers run command on each remote
// host, with log output directed to logDir. controlPort is the port the
// workers' control RPC service listens on.
func NewCluster(command, logDir, controlPort string) *Cluster {
	return &Cluster{
		command:     command,
		logDir:      logDir,
		controlPort: controlPort,
		StartupTime: time.Minute,
	}
}

// Start spawns one worker on each address and dials its control port.
func (c *Cluster) Start(addrs []string) error {
	c.clients = make([]*rpc.Client, len(addrs))
	for i, addr := range addrs {
		if err := c.spawnWorker(addr); err != nil {
			return err
		}
		i, addr := i, addr
		err := backoff.RetryNotify(
			func() error {
				client, err := rpc.DialHTTP("tcp", addr+":"+c.controlPort)
				if err != nil {
					return err
				}
				c.clients[i] = client
				return nil
			},
			backoff.NewExponentialBackOff(),
			func(err error, d time.Duration) {
				log.Printf("comm: dialing worker %v: %v; retrying in %v", addr, err, d)
			},
		)
		if err != nil {
			return fmt.Errorf("comm: while dialing worker %v: %v", addr, err)
		}
	}
	return nil
}

// Call invokes the named control service on worker i.
func (c *Cluster) Call(i int, service string, args, reply interface{}) error {
	if err := c.clients[i].Call(service, args, reply); err != nil {
		return &Error{Primitive: service, Code: CodeTransport, Site: "comm.Cluster.Call"}
	}
	return nil
}

// Go invokes the named control service on worker i asynchronously.
func (c *Cluster) Go(i int, service string, args, reply interface{}) *rpc.Call {
	return c.clients[i].Go(service, args, reply, nil)
}

// Shutdown directs every worker to exit and closes the control
// connections.
func (c *Cluster) Shutdown(exitService string) {
	for _, client := range c.clients {
		if client == nil {
			continue
		}
		client.Call(exitService, &Empty{}, &Empty{})
		client.Close()
	}
}

// spawnWorker executes the worker command at the address "addr" using
// the external "ssh" command. Stdout from the worker is routed to the
// log directory.
func (c *Cluster) spawnWorker(addr string) error {
	log.Println("comm: spawning worker", addr)
	cmd := exec.Command("ssh", addr, c.command)

	f, err := os.Create(filepath.Join(c.logDir, addr+".log"))
	if err != nil {
		return err
	}
	cmd.Stdout = f
	cmd.Stderr = f

	go func() {
		if err := cmd.Run(); err != nil {
			if err.Error() == "signal: killed" {
				log.Printf("comm: worker %v expected error: %v", addr, err)
			} else {
				log.Printf("comm: worker %v error: %v", addr, err)
			}
		}
	}()
	time.Sleep(c.StartupTime) // wait for a while for it to get started
	return nil
}

// PBSNodes returns the execution hosts assigned by a PBS batch system,
// read from $PBS_NODEFILE. The file lists one host per scheduled slot,
// optionally annotated ("node7 slots=16"); the same host therefore
// appears once per slot. One rank runs per host, so the list is
// deduplicated, keeping first-appearance order to leave the mother
// superior node as rank 0.
func PBSNodes() ([]string, error) {
	fname := os.Getenv("PBS_NODEFILE")
	if fname == "" {
		return nil, fmt.Errorf("comm: $PBS_NODEFILE not defined")
	}
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var nodes []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if host := fields[0]; !seen[host] {
			seen[host] = true
			nodes = append(nodes, host)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("comm: %s lists no nodes", fname)
	}
	return nodes, nil
}
