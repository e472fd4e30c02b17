package event

import (
	"encoding/binary"
	"math"
)

// PayloadKind tags which member of the Payload union is populated.
type PayloadKind uint8

const (
	// PayloadNone is an empty payload.
	PayloadNone PayloadKind = iota
	PayloadI64
	PayloadU64
	PayloadF64
	PayloadI32
	PayloadU32
	PayloadF32
	PayloadI16
	PayloadU16
	PayloadU8
)

// Payload is a fixed-size 16 byte tagged union carried by every Event.
// It never references heap memory, so publishing and dispatching do not allocate.
// Accessors report false when asked for a member other than the one that was stored.
type Payload struct {
	kind PayloadKind
	data [16]byte
}

// Kind returns the populated member of the union.
func (p Payload) Kind() PayloadKind {
	return p.kind
}

// I64s builds a payload holding two int64 values.
func I64s(v [2]int64) Payload {
	p := Payload{kind: PayloadI64}
	for i, x := range v {
		binary.LittleEndian.PutUint64(p.data[i*8:], uint64(x))
	}
	return p
}

// U64s builds a payload holding two uint64 values.
func U64s(v [2]uint64) Payload {
	p := Payload{kind: PayloadU64}
	for i, x := range v {
		binary.LittleEndian.PutUint64(p.data[i*8:], x)
	}
	return p
}

// U64 builds a payload holding a single 64-bit scalar (stored in the first U64s slot).
func U64(v uint64) Payload {
	return U64s([2]uint64{v, 0})
}

// F64s builds a payload holding two float64 values.
func F64s(v [2]float64) Payload {
	p := Payload{kind: PayloadF64}
	for i, x := range v {
		binary.LittleEndian.PutUint64(p.data[i*8:], math.Float64bits(x))
	}
	return p
}

// I32s builds a payload holding four int32 values.
func I32s(v [4]int32) Payload {
	p := Payload{kind: PayloadI32}
	for i, x := range v {
		binary.LittleEndian.PutUint32(p.data[i*4:], uint32(x))
	}
	return p
}

// U32s builds a payload holding four uint32 values.
func U32s(v [4]uint32) Payload {
	p := Payload{kind: PayloadU32}
	for i, x := range v {
		binary.LittleEndian.PutUint32(p.data[i*4:], x)
	}
	return p
}

// F32s builds a payload holding four float32 values.
func F32s(v [4]float32) Payload {
	p := Payload{kind: PayloadF32}
	for i, x := range v {
		binary.LittleEndian.PutUint32(p.data[i*4:], math.Float32bits(x))
	}
	return p
}

// I16s builds a payload holding eight int16 values.
func I16s(v [8]int16) Payload {
	p := Payload{kind: PayloadI16}
	for i, x := range v {
		binary.LittleEndian.PutUint16(p.data[i*2:], uint16(x))
	}
	return p
}

// U16s builds a payload holding eight uint16 values.
func U16s(v [8]uint16) Payload {
	p := Payload{kind: PayloadU16}
	for i, x := range v {
		binary.LittleEndian.PutUint16(p.data[i*2:], x)
	}
	return p
}

// U8s builds a payload holding sixteen bytes.
func U8s(v [16]uint8) Payload {
	return Payload{kind: PayloadU8, data: v}
}

func (p Payload) I64s() ([2]int64, bool) {
	var out [2]int64
	if p.kind != PayloadI64 {
		return out, false
	}
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(p.data[i*8:]))
	}
	return out, true
}

func (p Payload) U64s() ([2]uint64, bool) {
	var out [2]uint64
	if p.kind != PayloadU64 {
		return out, false
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(p.data[i*8:])
	}
	return out, true
}

// U64 returns the first uint64 slot.
func (p Payload) U64() (uint64, bool) {
	v, ok := p.U64s()
	return v[0], ok
}

func (p Payload) F64s() ([2]float64, bool) {
	var out [2]float64
	if p.kind != PayloadF64 {
		return out, false
	}
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(p.data[i*8:]))
	}
	return out, true
}

func (p Payload) I32s() ([4]int32, bool) {
	var out [4]int32
	if p.kind != PayloadI32 {
		return out, false
	}
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(p.data[i*4:]))
	}
	return out, true
}

func (p Payload) U32s() ([4]uint32, bool) {
	var out [4]uint32
	if p.kind != PayloadU32 {
		return out, false
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(p.data[i*4:])
	}
	return out, true
}

func (p Payload) F32s() ([4]float32, bool) {
	var out [4]float32
	if p.kind != PayloadF32 {
		return out, false
	}
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.data[i*4:]))
	}
	return out, true
}

func (p Payload) I16s() ([8]int16, bool) {
	var out [8]int16
	if p.kind != PayloadI16 {
		return out, false
	}
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p.data[i*2:]))
	}
	return out, true
}

func (p Payload) U16s() ([8]uint16, bool) {
	var out [8]uint16
	if p.kind != PayloadU16 {
		return out, false
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(p.data[i*2:])
	}
	return out, true
}

func (p Payload) U8s() ([16]uint8, bool) {
	if p.kind != PayloadU8 {
		return [16]uint8{}, false
	}
	return p.data, true
}
