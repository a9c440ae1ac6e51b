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


package ops

// A row band function. Processes rows yLo (inclusive) through yHi (exclusive).
// Operates in-place. For parallelization across CPUs.
type RowFunction func(yLo, yHi int)

// Applies the given row function to all rows of a frame with the given height.
// Neighborhood operators need whole rows rather than flat pixel ranges, so the
// work is banded by row. Splits into 8*maxThreads bands, limits parallelism
// to maxThreads.
func ForEachRowBand(height, maxThreads int, rf RowFunction) {
	if maxThreads<1 { maxThreads=1 }
	numBands:=8*maxThreads
	bandSize:=(height+numBands-1)/numBands
	if bandSize<1 { bandSize=1 }
	sem:=make(chan bool, maxThreads)
	for lower:=0; lower<height; lower+=bandSize {
		upper:=lower+bandSize
		if upper>height { upper=height }

		sem <- true
		go func(lower, upper int) {
			rf(lower, upper)
			<-sem
		}(lower, upper)
	}

	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}
