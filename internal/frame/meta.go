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

package frame

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v2"
)

/* Example sidecar file ...

deltaT: 0.016667
sun: [0.72, 0.18]

*/

// Meta holds the per-frame sidecar values that accompany a rendered frame.
type Meta struct {
	DeltaT   float32   `yaml:"deltaT"`   // Seconds since the previous frame
	Sun      []float32 `yaml:"sun,flow"` // Screen-space sun position in [0,1]x[0,1], if any
	Exposure float32   `yaml:"exposure"` // Manual exposure gain; 0 selects automatic exposure
}

// DefaultDeltaT is the frame delta time assumed when no sidecar is present.
const DefaultDeltaT = 1.0 / 60.0

// NewMeta returns sidecar defaults for a frame without a sidecar file.
func NewMeta() Meta {
	return Meta{DeltaT: DefaultDeltaT}
}

// HasSun reports whether the frame carries a sun position.
func (m Meta) HasSun() bool {
	return len(m.Sun) == 2
}

// MetaFileName returns the sidecar path for a frame file, replacing the
// image extension with .yml.
func MetaFileName(fileName string) string {
	ext := path.Ext(fileName)
	return strings.TrimSuffix(fileName, ext) + ".yml"
}

// ReadMeta loads the sidecar for the given frame file. A missing sidecar is
// not an error and yields the defaults.
func ReadMeta(fileName string) (Meta, error) {
	m := NewMeta()

	contents, err := os.ReadFile(MetaFileName(fileName))
	if os.IsNotExist(err) {
		return m, nil
	} else if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return m, fmt.Errorf("parse %s: %v", MetaFileName(fileName), err)
	}

	if m.DeltaT <= 0 {
		m.DeltaT = DefaultDeltaT
	}
	if len(m.Sun) != 0 && len(m.Sun) != 2 {
		return m, fmt.Errorf("parse %s: sun position must be [x, y], got %d values", MetaFileName(fileName), len(m.Sun))
	}
	return m, nil
}

// WriteMeta saves the sidecar for the given frame file.
func WriteMeta(fileName string, m Meta) error {
	contents, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(MetaFileName(fileName), contents, 0644)
}
