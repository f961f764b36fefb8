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

import "sync"

// Group is an in-process communicator group. Each rank runs in its own
// goroutine and messages travel over channels, which makes the group
// suitable for single-node multi-rank runs and for tests of the
// neighbour-exchange and reduction machinery.
type Group struct {
	size int

	mu    sync.Mutex
	chans map[groupKey]chan []float64
}

type groupKey struct {
	from, to, tag int
}

// NewGroup creates an in-process group of the given size and returns
// one Communicator per rank.
func NewGroup(size int) []Communicator {
	g := &Group{
		size:  size,
		chans: make(map[groupKey]chan []float64),
	}
	ranks := make([]Communicator, size)
	for r := 0; r < size; r++ {
		ranks[r] = &groupRank{g: g, rank: r}
	}
	return ranks
}

func (g *Group) channel(from, to, tag int) chan []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := groupKey{from, to, tag}
	ch, ok := g.chans[k]
	if !ok {
		ch = make(chan []float64, 16)
		g.chans[k] = ch
	}
	return ch
}

type groupRank struct {
	g    *Group
	rank int
}

type groupRequest struct {
	complete func() error
}

func (r *groupRequest) wait() error { return r.complete() }

func (c *groupRank) Rank() int { return c.rank }
func (c *groupRank) Size() int { return c.g.size }

func (c *groupRank) Isend(to, tag int, data []float64) (Request, error) {
	if to < 0 || to >= c.g.size {
		return nil, &Error{Primitive: "Isend", Code: CodeBadRank, Site: "comm.groupRank.Isend"}
	}
	ch := c.g.channel(c.rank, to, tag)
	msg := append([]float64(nil), data...)
	done := make(chan struct{})
	go func() {
		ch <- msg
		close(done)
	}()
	return &groupRequest{complete: func() error {
		<-done
		return nil
	}}, nil
}

func (c *groupRank) Irecv(from, tag int, buf []float64) (Request, error) {
	if from < 0 || from >= c.g.size {
		return nil, &Error{Primitive: "Irecv", Code: CodeBadRank, Site: "comm.groupRank.Irecv"}
	}
	ch := c.g.channel(from, c.rank, tag)
	return &groupRequest{complete: func() error {
		msg := <-ch
		if len(msg) != len(buf) {
			return &Error{Primitive: "Irecv", Code: CodeBadLength, Site: "comm.groupRank.Irecv"}
		}
		copy(buf, msg)
		return nil
	}}, nil
}

func (c *groupRank) WaitAll(reqs []Request) error {
	var first error
	for _, req := range reqs {
		if err := req.wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Single is the trivial communicator for a one-rank simulation: there
// are no neighbours to exchange with and every reduction is local.
type Single struct{}

func (Single) Rank() int { return 0 }
func (Single) Size() int { return 1 }

func (Single) Isend(to, tag int, data []float64) (Request, error) {
	return nil, &Error{Primitive: "Isend", Code: CodeBadRank, Site: "comm.Single.Isend"}
}

func (Single) Irecv(from, tag int, buf []float64) (Request, error) {
	return nil, &Error{Primitive: "Irecv", Code: CodeBadRank, Site: "comm.Single.Irecv"}
}

func (Single) WaitAll(reqs []Request) error {
	var first error
	for _, req := range reqs {
		if err := req.wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
