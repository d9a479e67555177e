package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary layout: 4-byte magic, 1-byte format version, uint32 dimension,
// uint32 vector count, then count*dimension little-endian float32 values
// in insertion order.
var fileMagic = [4]byte{'S', 'D', 'X', '1'}

const formatVersion = 1

// WriteTo writes the index in binary form. It matches io.WriterTo.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64

	if _, err := bw.Write(fileMagic[:]); err != nil {
		return n, fmt.Errorf("write magic: %w", err)
	}
	n += int64(len(fileMagic))

	if err := bw.WriteByte(formatVersion); err != nil {
		return n, fmt.Errorf("write version: %w", err)
	}
	n++

	header := []uint32{uint32(f.dim), uint32(len(f.vectors))}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return n, fmt.Errorf("write header: %w", err)
	}
	n += 8

	for i, v := range f.vectors {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return n, fmt.Errorf("write vector %d: %w", i, err)
		}
		n += int64(4 * len(v))
	}

	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	return n, nil
}

// ReadFrom replaces the index contents with the serialized form.
// It matches io.ReaderFrom.
func (f *Flat) ReadFrom(r io.Reader) (int64, error) {
	br := bufio.NewReader(r)
	var n int64

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return n, fmt.Errorf("read magic: %w", err)
	}
	n += int64(len(magic))
	if magic != fileMagic {
		return n, fmt.Errorf("bad magic %q", magic[:])
	}

	version, err := br.ReadByte()
	if err != nil {
		return n, fmt.Errorf("read version: %w", err)
	}
	n++
	if version != formatVersion {
		return n, fmt.Errorf("unsupported format version %d", version)
	}

	var header [2]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return n, fmt.Errorf("read header: %w", err)
	}
	n += 8

	dim, count := int(header[0]), int(header[1])
	if count > 0 && dim <= 0 {
		return n, fmt.Errorf("invalid dimension %d for %d vectors", dim, count)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		if err := binary.Read(br, binary.LittleEndian, vectors[i]); err != nil {
			return n, fmt.Errorf("read vector %d: %w", i, err)
		}
		n += int64(4 * dim)
	}

	f.dim = dim
	f.vectors = vectors
	return n, nil
}
