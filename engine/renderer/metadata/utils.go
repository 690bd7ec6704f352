package metadata

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
)

// hashWriter feeds fixed-width little endian values into an FNV-1a hasher so
// that structurally identical descriptions always produce the same key.
type hashWriter struct {
	h   hash.Hash64
	buf [8]byte
}

func newHashWriter() *hashWriter {
	return &hashWriter{h: fnv.New64a()}
}

func (w *hashWriter) uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.h.Write(w.buf[:4])
}

func (w *hashWriter) uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:], v)
	w.h.Write(w.buf[:])
}

func (w *hashWriter) int32(v int32) {
	w.uint32(uint32(v))
}

func (w *hashWriter) float32(v float32) {
	w.uint32(math.Float32bits(v))
}

func (w *hashWriter) bool(v bool) {
	if v {
		w.buf[0] = 1
	} else {
		w.buf[0] = 0
	}
	w.h.Write(w.buf[:1])
}

func (w *hashWriter) bytes(v []byte) {
	w.uint64(uint64(len(v)))
	w.h.Write(v)
}

func (w *hashWriter) string(v string) {
	w.uint64(uint64(len(v)))
	w.h.Write([]byte(v))
}

func (w *hashWriter) sum() uint64 {
	return w.h.Sum64()
}

// CombineHash mixes an additional value into an existing hash.
func CombineHash(seed uint64, value uint64) uint64 {
	w := newHashWriter()
	w.uint64(seed)
	w.uint64(value)
	return w.sum()
}
