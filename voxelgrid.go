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
	"sort"

	"github.com/ctessum/sparse"
	"github.com/vascularmodel/hemolb/d3q15"
)

// VoxelGrid is a regular voxel lattice used to construct partitions:
// simple geometries for tests and benchmarks, standing in for the
// external geometry loader that produces partitions for real vascular
// trees. Voxels are either solid or carry a collision class and,
// for opening classes, a boundary id.
type VoxelGrid struct {
	NX, NY, NZ int

	// Periodic wraps the stencil around all three axes, turning the
	// grid into a closed box with no walls.
	Periodic bool

	Inlets, Outlets int

	siteType *sparse.DenseArrayInt // class+1 per voxel; 0 is solid
	boundary *sparse.DenseArrayInt // boundary id+1 per voxel; 0 is none
}

// NewVoxelGrid creates an all-solid grid of the given dimensions.
func NewVoxelGrid(nx, ny, nz int, periodic bool) *VoxelGrid {
	return &VoxelGrid{
		NX: nx, NY: ny, NZ: nz,
		Periodic: periodic,
		siteType: sparse.ZerosDenseInt(nx, ny, nz),
		boundary: sparse.ZerosDenseInt(nx, ny, nz),
	}
}

// SetSite marks a voxel as fluid with the given collision class.
// boundaryID is ignored for mid-fluid and wall sites.
func (g *VoxelGrid) SetSite(x, y, z int, class SiteType, boundaryID int) {
	g.siteType.Set(int(class)+1, x, y, z)
	switch class {
	case InletType, InletWallType:
		g.boundary.Set(boundaryID+1, x, y, z)
		if boundaryID+1 > g.Inlets {
			g.Inlets = boundaryID + 1
		}
	case OutletType, OutletWallType:
		g.boundary.Set(boundaryID+1, x, y, z)
		if boundaryID+1 > g.Outlets {
			g.Outlets = boundaryID + 1
		}
	}
}

// BoxGrid is a fully periodic box of bulk fluid: the simplest closed
// geometry, with no walls or openings.
func BoxGrid(n int) *VoxelGrid {
	g := NewVoxelGrid(n, n, n, true)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				g.SetSite(x, y, z, MidFluidType, 0)
			}
		}
	}
	return g
}

// ChannelGrid is a straight channel along the z axis: wall sites on the
// x and y faces, inlet 0 across z=0 and outlet 0 across z=nz-1.
func ChannelGrid(nx, ny, nz int) *VoxelGrid {
	g := NewVoxelGrid(nx, ny, nz, false)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				side := x == 0 || x == nx-1 || y == 0 || y == ny-1
				switch {
				case z == 0 && side:
					g.SetSite(x, y, z, InletWallType, 0)
				case z == 0:
					g.SetSite(x, y, z, InletType, 0)
				case z == nz-1 && side:
					g.SetSite(x, y, z, OutletWallType, 0)
				case z == nz-1:
					g.SetSite(x, y, z, OutletType, 0)
				case side:
					g.SetSite(x, y, z, WallType, 0)
				default:
					g.SetSite(x, y, z, MidFluidType, 0)
				}
			}
		}
	}
	return g
}

func (g *VoxelGrid) fluid(x, y, z int) bool {
	return g.siteType.Get(x, y, z) != 0
}

// neighborVoxel returns the voxel one stencil step away in direction l,
// wrapping on periodic grids. ok is false when the step leaves the
// grid or lands on a solid voxel.
func (g *VoxelGrid) neighborVoxel(x, y, z, l int) (nx, ny, nz int, ok bool) {
	nx = x + d3q15.CX[l]
	ny = y + d3q15.CY[l]
	nz = z + d3q15.CZ[l]
	if g.Periodic {
		nx = (nx + g.NX) % g.NX
		ny = (ny + g.NY) % g.NY
		nz = (nz + g.NZ) % g.NZ
	} else if nx < 0 || nx >= g.NX || ny < 0 || ny >= g.NY || nz < 0 || nz >= g.NZ {
		return 0, 0, 0, false
	}
	return nx, ny, nz, g.fluid(nx, ny, nz)
}

// owner assigns voxels to ranks in slabs along the x axis.
func (g *VoxelGrid) owner(x, ranks int) int {
	return x * ranks / g.NX
}

type gridSite struct {
	global  int
	x, y, z int
	class   SiteType
	inter   bool
}

// Partition decomposes the grid into the given number of ranks and
// builds one Partition per rank, with the dense inner-then-inter,
// class-sorted site ordering and pairwise-consistent neighbour
// exchange descriptors the step loop requires.
func (g *VoxelGrid) Partition(ranks int) ([]*Partition, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("hemolb: cannot partition for %d ranks", ranks)
	}
	if ranks > g.NX {
		return nil, fmt.Errorf("hemolb: %d ranks for %d slabs", ranks, g.NX)
	}

	// Global enumeration of fluid voxels in x, y, z order.
	siteIdx := sparse.ZerosDenseInt(g.NX, g.NY, g.NZ) // global+1; 0 is no site
	var coords [][3]int
	for x := 0; x < g.NX; x++ {
		for y := 0; y < g.NY; y++ {
			for z := 0; z < g.NZ; z++ {
				if g.fluid(x, y, z) {
					siteIdx.Set(len(coords)+1, x, y, z)
					coords = append(coords, [3]int{x, y, z})
				}
			}
		}
	}

	// Collect and order each rank's sites: inner region first, then
	// inter, both sorted by class and then by global number.
	perRank := make([][]gridSite, ranks)
	for global, c := range coords {
		x, y, z := c[0], c[1], c[2]
		r := g.owner(x, ranks)
		s := gridSite{
			global: global,
			x:      x, y: y, z: z,
			class: SiteType(g.siteType.Get(x, y, z) - 1),
		}
		for l := 1; l < d3q15.NumVectors; l++ {
			if nx, _, _, ok := g.neighborVoxel(x, y, z, l); ok && g.owner(nx, ranks) != r {
				s.inter = true
				break
			}
		}
		perRank[r] = append(perRank[r], s)
	}

	local := make([]int, len(coords)) // global -> local site index
	parts := make([]*Partition, ranks)
	for r := range perRank {
		sites := perRank[r]
		sort.Slice(sites, func(i, j int) bool {
			if sites[i].inter != sites[j].inter {
				return !sites[i].inter
			}
			if sites[i].class != sites[j].class {
				return sites[i].class < sites[j].class
			}
			return sites[i].global < sites[j].global
		})

		p := &Partition{
			SiteCount:   len(sites),
			InletCount:  g.Inlets,
			OutletCount: g.Outlets,
			BoundaryID:  make([]int, len(sites)),
			GlobalSite:  make([]int, len(sites)),
		}
		for i, s := range sites {
			local[s.global] = i
			p.GlobalSite[i] = s.global
			if s.inter {
				p.InterCounts[s.class]++
			} else {
				p.InnerCounts[s.class]++
				p.InnerSiteCount++
			}
			switch s.class {
			case InletType, OutletType, InletWallType, OutletWallType:
				p.BoundaryID[i] = g.boundary.Get(s.x, s.y, s.z) - 1
			default:
				p.BoundaryID[i] = -1
			}
		}
		parts[r] = p
	}

	// Streaming targets and exchange lists. Outbound directions are
	// keyed by (global source site, direction) so that the sender's
	// ordering matches the receiver's reconstruction of it.
	type exchange struct {
		sortKey [2]int // (global source site, direction)
		slot    SiteDirection
	}
	for r := range perRank {
		p := parts[r]
		p.Stream = make([]int, p.SiteCount*d3q15.NumVectors)
		sends := make(map[int][]exchange) // by remote rank
		recvs := make(map[int][]exchange)

		for i := 0; i < p.SiteCount; i++ {
			global := p.GlobalSite[i]
			c := coords[global]
			for l := 0; l < d3q15.NumVectors; l++ {
				slot := i*d3q15.NumVectors + l
				if l == 0 {
					p.Stream[slot] = slot
					continue
				}
				nx, ny, nz, ok := g.neighborVoxel(c[0], c[1], c[2], l)
				if !ok {
					// No fluid neighbour: the value bounces into the
					// site's own opposite slot, so every distribution
					// slot is rewritten each step.
					p.Stream[slot] = i*d3q15.NumVectors + d3q15.Inverse[l]
				} else if o := g.owner(nx, ranks); o == r {
					nbGlobal := siteIdx.Get(nx, ny, nz) - 1
					p.Stream[slot] = local[nbGlobal]*d3q15.NumVectors + l
				} else {
					sends[o] = append(sends[o], exchange{
						sortKey: [2]int{global, l},
						slot:    SiteDirection{Site: i, Dir: l},
					})
				}
				// The value arriving along l comes from the voxel the
				// inverse direction points to.
				sx, sy, sz, sok := g.neighborVoxel(c[0], c[1], c[2], d3q15.Inverse[l])
				if sok {
					srcGlobal := siteIdx.Get(sx, sy, sz) - 1
					if so := g.owner(sx, ranks); so != r {
						recvs[so] = append(recvs[so], exchange{
							sortKey: [2]int{srcGlobal, l},
							slot:    SiteDirection{Site: i, Dir: l},
						})
					}
				}
			}
		}

		var neighborRanks []int
		for o := range sends {
			neighborRanks = append(neighborRanks, o)
		}
		for o := range recvs {
			if _, ok := sends[o]; !ok {
				neighborRanks = append(neighborRanks, o)
			}
		}
		sort.Ints(neighborRanks)

		tail := 0
		for _, o := range neighborRanks {
			s, v := sends[o], recvs[o]
			for _, list := range [][]exchange{s, v} {
				list := list
				sort.Slice(list, func(i, j int) bool {
					if list[i].sortKey[0] != list[j].sortKey[0] {
						return list[i].sortKey[0] < list[j].sortKey[0]
					}
					return list[i].sortKey[1] < list[j].sortKey[1]
				})
			}
			nb := Neighbor{Rank: o}
			for k, e := range s {
				nb.Send = append(nb.Send, e.slot)
				p.Stream[e.slot.Site*d3q15.NumVectors+e.slot.Dir] =
					p.SiteCount*d3q15.NumVectors + tail + k
			}
			for _, e := range v {
				nb.Recv = append(nb.Recv, e.slot)
			}
			tail += len(s)
			p.Neighbors = append(p.Neighbors, nb)
		}
		p.SharedCount = tail

		if err := p.Check(); err != nil {
			return nil, err
		}
	}
	return parts, nil
}
