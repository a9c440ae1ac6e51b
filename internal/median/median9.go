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


// Package median provides fixed-size median networks for 3x3 neighborhood
// filtering, both value-only and with source index tracking so a caller can
// recover the full sample behind the median key.
package median

import (
	"math"
	"github.com/mfichtner/afterglow/internal/qsort"
)

// Calculates the median of a float32 slice of length nine.
// Modifies the elements in place.
// From https://stackoverflow.com/questions/45453537/optimal-9-element-sorting-network-that-reduces-to-an-optimal-median-of-9-network
// See also http://ndevilla.free.fr/median/median/src/optmed.c for other sizes
// Array must not contain IEEE NaN
func MedianFloat32Slice9(a []float32) float32 {       // 30x min/max
    // function swap(i,j) {var tmp = MIN(a[i],a[j]); a[j] = MAX(a[i],a[j]); a[i] = tmp;}
    // function min(i,j) {a[i] = MIN(a[i],a[j]);}
    // function max(i,j) {a[j] = MAX(a[i],a[j]);}

    if a[0]>a[1] { a[0], a[1] = a[1], a[0]}  // swap(a,0,1)
    if a[3]>a[4] { a[3], a[4] = a[4], a[3]}  // swap(a,3,4)
    if a[6]>a[7] { a[6], a[7] = a[7], a[6]}  // swap(a,6,7)
    if a[1]>a[2] { a[1], a[2] = a[2], a[1]}  // swap(a,1,2)
    if a[4]>a[5] { a[4], a[5] = a[5], a[4]}  // swap(a,4,5)
    if a[7]>a[8] { a[7], a[8] = a[8], a[7]}  // swap(a,7,8)
    if a[0]>a[1] { a[0], a[1] = a[1], a[0]}  // swap(a,0,1)
    if a[3]>a[4] { a[3], a[4] = a[4], a[3]}  // swap(a,3,4)
    if a[6]>a[7] { a[6], a[7] = a[7], a[6]}  // swap(a,6,7)
    if a[0]>a[3] { a[3]       = a[0]      }  // max (a,0,3)
    if a[3]>a[6] { a[6]       = a[3]      }  // max (a,3,6)
    if a[1]>a[4] { a[1], a[4] = a[4], a[1]}  // swap(a,1,4)
    if a[4]>a[7] { a[4]       = a[7]      }  // min (a,4,7)
    if a[1]>a[4] { a[4]       = a[1]      }  // max (a,1,4)
    if a[5]>a[8] { a[5]       = a[8]      }  // min (a,5,8)
    if a[2]>a[5] { a[2]       = a[5]      }  // min (a,2,5)
    if a[2]>a[4] { a[2], a[4] = a[4], a[2]}  // swap(a,2,4)
    if a[4]>a[6] { a[4]       = a[6]      }  // min (a,4,6)
    if a[2]>a[4] { a[4]       = a[2]      }  // max (a,2,4)
    return a[4]
}

// Returns the original index of the median element of nine float32 keys,
// using the same comparator network as MedianFloat32Slice9 but moving
// (key, index) records as a unit. The min/max shortcuts overwrite the losing
// record entirely, so position 4 ends up holding the median key together
// with its source index. Keys are passed by value and left untouched at the
// caller. Keys must not contain IEEE NaN. Ties resolve to the record that
// arrived first in network order, which is always a valid median index.
func MedianIndex9(k [9]float32) int {
    x:=[9]int{0,1,2,3,4,5,6,7,8}

    if k[0]>k[1] { k[0],k[1],x[0],x[1] = k[1],k[0],x[1],x[0] }  // swap(0,1)
    if k[3]>k[4] { k[3],k[4],x[3],x[4] = k[4],k[3],x[4],x[3] }  // swap(3,4)
    if k[6]>k[7] { k[6],k[7],x[6],x[7] = k[7],k[6],x[7],x[6] }  // swap(6,7)
    if k[1]>k[2] { k[1],k[2],x[1],x[2] = k[2],k[1],x[2],x[1] }  // swap(1,2)
    if k[4]>k[5] { k[4],k[5],x[4],x[5] = k[5],k[4],x[5],x[4] }  // swap(4,5)
    if k[7]>k[8] { k[7],k[8],x[7],x[8] = k[8],k[7],x[8],x[7] }  // swap(7,8)
    if k[0]>k[1] { k[0],k[1],x[0],x[1] = k[1],k[0],x[1],x[0] }  // swap(0,1)
    if k[3]>k[4] { k[3],k[4],x[3],x[4] = k[4],k[3],x[4],x[3] }  // swap(3,4)
    if k[6]>k[7] { k[6],k[7],x[6],x[7] = k[7],k[6],x[7],x[6] }  // swap(6,7)
    if k[0]>k[3] { k[3],x[3] = k[0],x[0] }                      // max (0,3)
    if k[3]>k[6] { k[6],x[6] = k[3],x[3] }                      // max (3,6)
    if k[1]>k[4] { k[1],k[4],x[1],x[4] = k[4],k[1],x[4],x[1] }  // swap(1,4)
    if k[4]>k[7] { k[4],x[4] = k[7],x[7] }                      // min (4,7)
    if k[1]>k[4] { k[4],x[4] = k[1],x[1] }                      // max (1,4)
    if k[5]>k[8] { k[5],x[5] = k[8],x[8] }                      // min (5,8)
    if k[2]>k[5] { k[2],x[2] = k[5],x[5] }                      // min (2,5)
    if k[2]>k[4] { k[2],k[4],x[2],x[4] = k[4],k[2],x[4],x[2] }  // swap(2,4)
    if k[4]>k[6] { k[4],x[4] = k[6],x[6] }                      // min (4,6)
    if k[2]>k[4] { k[4],x[4] = k[2],x[2] }                      // max (2,4)
    return x[4]
}

// Calculates the median of a float32 slice of any length.
// Modifies the elements in place.
// Array must not contain IEEE NaN
func MedianFloat32(a []float32) float32 {
	if len(a)==0 { return float32(math.NaN()) }
	if len(a)==9 { return MedianFloat32Slice9(a) }
	return qsort.QSelectMedianFloat32(a)
}
