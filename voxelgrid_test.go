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
	"testing"

	"github.com/vascularmodel/hemolb/d3q15"
)

// globalCoords reproduces the builder's global enumeration: fluid
// voxels in x, y, z order.
func globalCoords(g *VoxelGrid) [][3]int {
	var coords [][3]int
	for x := 0; x < g.NX; x++ {
		for y := 0; y < g.NY; y++ {
			for z := 0; z < g.NZ; z++ {
				if g.fluid(x, y, z) {
					coords = append(coords, [3]int{x, y, z})
				}
			}
		}
	}
	return coords
}

func TestChannelGridClasses(t *testing.T) {
	g := ChannelGrid(5, 5, 12)
	if g.Inlets != 1 || g.Outlets != 1 {
		t.Fatalf("channel has %d inlets and %d outlets, want 1 and 1", g.Inlets, g.Outlets)
	}
	parts, err := g.Partition(1)
	if err != nil {
		t.Fatal(err)
	}
	p := parts[0]
	counts := make([]int, CollisionClasses)
	for c := 0; c < CollisionClasses; c++ {
		counts[c] = p.InnerCounts[c] + p.InterCounts[c]
	}
	// 3x3 open cross-sections on a 5x5 face, 12 deep.
	if counts[MidFluidType] != 3*3*10 {
		t.Errorf("%d bulk sites, want %d", counts[MidFluidType], 3*3*10)
	}
	if counts[WallType] != 16*10 {
		t.Errorf("%d wall sites, want %d", counts[WallType], 16*10)
	}
	if counts[InletType] != 9 || counts[OutletType] != 9 {
		t.Errorf("%d inlet and %d outlet sites, want 9 and 9", counts[InletType], counts[OutletType])
	}
	if counts[InletWallType] != 16 || counts[OutletWallType] != 16 {
		t.Errorf("%d inlet-wall and %d outlet-wall sites, want 16 and 16",
			counts[InletWallType], counts[OutletWallType])
	}
}

// The exchange descriptors of a rank pair must mirror each other
// entry for entry: my k-th receive from you is the streamed image of
// your k-th send to me.
func TestExchangeSymmetry(t *testing.T) {
	for _, grid := range []*VoxelGrid{BoxGrid(8), ChannelGrid(5, 5, 12)} {
		coords := globalCoords(grid)
		for _, ranks := range []int{2, 4} {
			if ranks > grid.NX {
				continue
			}
			parts, err := grid.Partition(ranks)
			if err != nil {
				t.Fatal(err)
			}
			for a, pa := range parts {
				for _, nb := range pa.Neighbors {
					pb := parts[nb.Rank]
					var back *Neighbor
					for i := range pb.Neighbors {
						if pb.Neighbors[i].Rank == a {
							back = &pb.Neighbors[i]
						}
					}
					if back == nil {
						t.Fatalf("rank %d lists %d as neighbour but not vice versa", a, nb.Rank)
					}
					if len(nb.Send) != len(back.Recv) || len(nb.Recv) != len(back.Send) {
						t.Fatalf("ranks %d-%d exchange lengths not symmetric", a, nb.Rank)
					}
					for k, send := range nb.Send {
						recv := back.Recv[k]
						if send.Dir != recv.Dir {
							t.Fatalf("ranks %d-%d slot %d directions %d vs %d",
								a, nb.Rank, k, send.Dir, recv.Dir)
						}
						src := coords[pa.GlobalSite[send.Site]]
						dst := coords[pb.GlobalSite[recv.Site]]
						sx, sy, sz, ok := grid.neighborVoxel(src[0], src[1], src[2], send.Dir)
						if !ok {
							t.Fatalf("send slot without a fluid target")
						}
						if sx != dst[0] || sy != dst[1] || sz != dst[2] {
							t.Fatalf("ranks %d-%d slot %d: send from %v along %d lands at (%d,%d,%d), receiver expects %v",
								a, nb.Rank, k, src, send.Dir, sx, sy, sz, dst)
						}
					}
				}
			}
		}
	}
}

// Streaming targets within a rank must be a consistent image of the
// stencil: local targets land in the neighbour's slot of the same
// direction, and missing neighbours bounce into the opposite slot.
func TestStreamTargets(t *testing.T) {
	g := ChannelGrid(5, 5, 12)
	coords := globalCoords(g)
	parts, err := g.Partition(1)
	if err != nil {
		t.Fatal(err)
	}
	p := parts[0]
	local := make(map[int]int) // global -> local
	for i, glob := range p.GlobalSite {
		local[glob] = i
	}
	for i := 0; i < p.SiteCount; i++ {
		c := coords[p.GlobalSite[i]]
		for l := 0; l < d3q15.NumVectors; l++ {
			target := p.Stream[i*d3q15.NumVectors+l]
			if l == 0 {
				if target != i*d3q15.NumVectors {
					t.Fatalf("rest vector of site %d streams to %d", i, target)
				}
				continue
			}
			nx, ny, nz, ok := g.neighborVoxel(c[0], c[1], c[2], l)
			if !ok {
				if want := i*d3q15.NumVectors + d3q15.Inverse[l]; target != want {
					t.Fatalf("site %d direction %d should bounce to %d, streams to %d", i, l, want, target)
				}
				continue
			}
			// Locate the neighbour's global number.
			found := -1
			for glob, cc := range coords {
				if cc[0] == nx && cc[1] == ny && cc[2] == nz {
					found = glob
					break
				}
			}
			if want := local[found]*d3q15.NumVectors + l; target != want {
				t.Fatalf("site %d direction %d streams to %d, want %d", i, l, target, want)
			}
		}
	}
}
