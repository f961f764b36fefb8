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
	"log"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Empty is used for passing content-less messages.
type Empty struct{}

// Packet is one point-to-point message between ranks.
type Packet struct {
	From, Tag int
	Data      []float64
}

// TCP connects the ranks of a distributed simulation in a full mesh of
// net/rpc connections. Every rank listens on its own address and holds
// one client per peer; messages are delivered into a per-(sender, tag)
// inbox on the receiving side.
type TCP struct {
	rank  int
	addrs []string

	clients []*rpc.Client
	ln      net.Listener

	mu    sync.Mutex
	inbox map[groupKey]chan []float64
}

// Mesh is the RPC receiver exported by each rank. It should not be
// interacted with directly, but it is exported to meet net/rpc
// requirements.
type Mesh struct {
	t *TCP
}

// Deliver places a packet in the receiving rank's inbox. It meets the
// requirements for use with rpc.Call.
func (m *Mesh) Deliver(p *Packet, _ *Empty) error {
	m.t.channel(p.From, p.Tag) <- p.Data
	return nil
}

// NewTCP creates the communicator for one rank of a distributed run.
// addrs lists the listen address of every rank in rank order. The call
// blocks until connections to all peers have been established, retrying
// with exponential backoff while the other ranks start up.
func NewTCP(rank int, addrs []string) (*TCP, error) {
	t := &TCP{
		rank:  rank,
		addrs: addrs,
		inbox: make(map[groupKey]chan []float64),
	}

	_, port, err := net.SplitHostPort(addrs[rank])
	if err != nil {
		return nil, &Error{Primitive: "SplitHostPort", Code: CodeTransport, Site: "comm.NewTCP"}
	}
	t.ln, err = net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, &Error{Primitive: "Listen", Code: CodeTransport, Site: "comm.NewTCP"}
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName("Mesh", &Mesh{t: t}); err != nil {
		return nil, &Error{Primitive: "RegisterName", Code: CodeTransport, Site: "comm.NewTCP"}
	}
	go srv.Accept(t.ln)

	t.clients = make([]*rpc.Client, len(addrs))
	for r, addr := range addrs {
		if r == rank {
			continue
		}
		r, addr := r, addr
		err := backoff.RetryNotify(
			func() error {
				client, err := rpc.Dial("tcp", addr)
				if err != nil {
					return err
				}
				t.clients[r] = client
				return nil
			},
			backoff.NewExponentialBackOff(),
			func(err error, d time.Duration) {
				log.Printf("comm: dialing rank %d at %v: %v; retrying in %v", r, addr, err, d)
			},
		)
		if err != nil {
			return nil, &Error{Primitive: "Dial", Code: CodeTransport, Site: "comm.NewTCP"}
		}
	}
	return t, nil
}

func (t *TCP) channel(from, tag int) chan []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := groupKey{from: from, to: t.rank, tag: tag}
	ch, ok := t.inbox[k]
	if !ok {
		ch = make(chan []float64, 16)
		t.inbox[k] = ch
	}
	return ch
}

func (t *TCP) Rank() int { return t.rank }
func (t *TCP) Size() int { return len(t.addrs) }

type tcpRequest struct {
	complete func() error
}

func (r *tcpRequest) wait() error { return r.complete() }

func (t *TCP) Isend(to, tag int, data []float64) (Request, error) {
	if to < 0 || to >= len(t.addrs) {
		return nil, &Error{Primitive: "Isend", Code: CodeBadRank, Site: "comm.TCP.Isend"}
	}
	p := &Packet{From: t.rank, Tag: tag, Data: append([]float64(nil), data...)}
	if to == t.rank {
		t.channel(t.rank, tag) <- p.Data
		return &tcpRequest{complete: func() error { return nil }}, nil
	}
	call := t.clients[to].Go("Mesh.Deliver", p, &Empty{}, nil)
	return &tcpRequest{complete: func() error {
		<-call.Done
		if call.Error != nil {
			return &Error{Primitive: "Mesh.Deliver", Code: CodeTransport, Site: "comm.TCP.Isend"}
		}
		return nil
	}}, nil
}

func (t *TCP) Irecv(from, tag int, buf []float64) (Request, error) {
	if from < 0 || from >= len(t.addrs) {
		return nil, &Error{Primitive: "Irecv", Code: CodeBadRank, Site: "comm.TCP.Irecv"}
	}
	ch := t.channel(from, tag)
	return &tcpRequest{complete: func() error {
		msg := <-ch
		if len(msg) != len(buf) {
			return &Error{Primitive: "Irecv", Code: CodeBadLength, Site: "comm.TCP.Irecv"}
		}
		copy(buf, msg)
		return nil
	}}, nil
}

func (t *TCP) WaitAll(reqs []Request) error {
	var first error
	for _, req := range reqs {
		if err := req.wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close shuts down the listener and all peer connections.
func (t *TCP) Close() error {
	for _, c := range t.clients {
		if c != nil {
			c.Close()
		}
	}
	return t.ln.Close()
}
