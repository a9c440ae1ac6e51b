// Copyright (C) 2026 Moritz Fichtner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package kernel provides precomputed Gaussian convolution coefficient
// tables. Tables are built once at startup and immutable afterwards.
package kernel

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// A square convolution coefficient table with odd edge length,
// normalized to unit sum. Shared read-only between all users.
type Table struct {
	Size int        // edge length, odd
	W    []float32  // Size*Size row-major weights
}

// Returns the weight for tap offset (dx, dy), each in [-Size/2, Size/2].
func (t *Table) At(dx, dy int) float32 {
	r:=t.Size>>1
	return t.W[(dy+r)*t.Size+(dx+r)]
}

// Radius returns the tap radius Size/2.
func (t *Table) Radius() int { return t.Size>>1 }

// Box-averaged isotropic Gaussian tables used by the bloom blur.
// Built at startup from exact per-cell integrals.
var (
	Gauss3 Table
	Gauss5 Table
	Gauss7 Table
)

func init() {
	Gauss3=NewGaussTable(3)
	Gauss5=NewGaussTable(5)
	Gauss7=NewGaussTable(7)
}

// NewGaussTable builds an n x n coefficient table for an isotropic 2D
// Gaussian, box-averaged per output cell: each 1D cell weight is the exact
// definite integral of the normal density over [i-0.5, i+0.5], and the 2D
// weight is the separable product of the cell integrals. Sigma grows with
// the table radius (1.0, 1.5, 2.0 for sizes 3, 5, 7). n must be odd.
func NewGaussTable(n int) Table {
	r:=n>>1
	norm:=distuv.Normal{Mu: 0, Sigma: float64(r+1)*0.5}

	cells:=make([]float64, n)
	for i:=0; i<n; i++ {
		x:=float64(i-r)
		cells[i]=norm.CDF(x+0.5)-norm.CDF(x-0.5)
	}

	w:=make([]float32, n*n)
	sum:=float64(0)
	for y:=0; y<n; y++ {
		for x:=0; x<n; x++ {
			p:=cells[y]*cells[x]
			w[y*n+x]=float32(p)
			sum+=p
		}
	}
	inv:=float32(1.0/sum)
	for i:=range w { w[i]*=inv }

	return Table{Size: n, W: w}
}
