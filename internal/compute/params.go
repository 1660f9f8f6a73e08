package compute

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"terrainstream/internal/terrain"
)

// ParamsSize is the encoded size of Params. The block is laid out for a
// 16-byte aligned uniform buffer.
const ParamsSize = 80

// Params is the fixed parameter block handed to a density backend.
//
//	offset  0  samples per axis   3 x uint32
//	offset 12  level              uint32
//	offset 16  min corner         3 x int64
//	offset 40  max corner         3 x int64
//	offset 64  apron              uint32
//	offset 68  reserved           3 x uint32
//
// The output buffer holds one float32 per sample, apron included, with x
// varying fastest.
type Params struct {
	SampleCount [3]uint32
	LOD         uint32
	Min         [3]int64
	Max         [3]int64
	Apron       uint32
	_           [3]uint32
}

func NewParams(lat terrain.Lattice, level int) Params {
	p := Params{LOD: uint32(level), Apron: uint32(lat.Pad)}
	for axis := 0; axis < 3; axis++ {
		p.SampleCount[axis] = uint32(lat.Samples[axis])
		p.Min[axis] = lat.Origin[axis]
		p.Max[axis] = lat.Origin[axis] + lat.Size[axis]
	}
	return p
}

// Lattice returns the sample lattice described by the block.
func (p Params) Lattice() (terrain.Lattice, error) {
	var lat terrain.Lattice
	for axis := 0; axis < 3; axis++ {
		if p.Max[axis] <= p.Min[axis] {
			return lat, fmt.Errorf("compute: axis %d max %d not above min %d", axis, p.Max[axis], p.Min[axis])
		}
		lat.Origin[axis] = p.Min[axis]
		lat.Size[axis] = p.Max[axis] - p.Min[axis]
		lat.Samples[axis] = int(p.SampleCount[axis])
	}
	lat.Pad = int(p.Apron)
	if err := lat.Validate(); err != nil {
		return lat, fmt.Errorf("compute: %w", err)
	}
	return lat, nil
}

func (p Params) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(ParamsSize)
	if err := binary.Write(&buf, binary.LittleEndian, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Params) UnmarshalBinary(data []byte) error {
	if len(data) != ParamsSize {
		return fmt.Errorf("compute: params block is %d bytes, want %d", len(data), ParamsSize)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, p)
}
