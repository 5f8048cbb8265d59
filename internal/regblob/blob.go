// Package regblob builds and parses the opaque byte blobs
// RegisterContext.ReadAll/WriteAll pass around, as a growable contiguous
// buffer in the shape of the teacher's internal/buffer.Buffer: a single
// backing slice grown by the total size needed up front so ReadAll
// never has to resize mid-copy.
package regblob

import "encoding/binary"

// Builder accumulates named register values into one contiguous blob.
// Layout per entry: uint32 name length, name bytes, uint32 value length,
// value bytes. This is deliberately simple (no unsafe struct aliasing,
// unlike the teacher's buffer package) because register sets vary in
// shape across architectures and backends; a self-describing blob lets
// WriteAll match each value to its register by name.
type Builder struct {
	slice []byte
}

// NewBuilder returns a Builder with room enough to grow by extra bytes
// before its first reallocation.
func NewBuilder(extra int) *Builder {
	return &Builder{slice: make([]byte, 0, extra)}
}

// Put appends one named register value to the blob.
func (b *Builder) Put(name string, value []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(name)))
	b.slice = append(b.slice, lenBuf[:]...)
	b.slice = append(b.slice, name...)
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(value)))
	b.slice = append(b.slice, lenBuf[:]...)
	b.slice = append(b.slice, value...)
}

// Bytes returns the accumulated blob.
func (b *Builder) Bytes() []byte {
	return b.slice
}

// Entry is one decoded (name, value) pair from a blob produced by
// Builder.
type Entry struct {
	Name  string
	Value []byte
}

// Parse decodes a blob produced by Builder back into its entries, in the
// order they were written.
func Parse(blob []byte) ([]Entry, error) {
	var entries []Entry
	pos := 0
	for pos < len(blob) {
		name, next, err := readChunk(blob, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		value, next, err := readChunk(blob, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		entries = append(entries, Entry{Name: string(name), Value: value})
	}
	return entries, nil
}

func readChunk(blob []byte, pos int) (chunk []byte, next int, err error) {
	if pos+4 > len(blob) {
		return nil, 0, errShortBlob
	}
	n := int(binary.LittleEndian.Uint32(blob[pos : pos+4]))
	pos += 4
	if pos+n > len(blob) {
		return nil, 0, errShortBlob
	}
	return blob[pos : pos+n], pos + n, nil
}

var errShortBlob = blobError("register blob truncated")

type blobError string

func (e blobError) Error() string { return string(e) }
