package libio

import (
	"encoding/binary"
	"io"
)

// BinaryReader reads fixed size values with a sticky error. Once a read
// fails every further read is a no-op and Err holds the first error.
// Index is the number of bytes consumed so far, LastIndex the offset at
// which the last read started.
type BinaryReader struct {
	Order     binary.ByteOrder
	Src       io.Reader
	Index     int
	LastIndex int
	Err       error
	buf       []byte
}

func (br *BinaryReader) ReadBytes(n int) (ok bool) {
	if br.Err != nil {
		return false
	}

	if cap(br.buf) < n {
		br.buf = make([]byte, n)
	} else {
		br.buf = br.buf[:n]
	}

	nread, err := io.ReadFull(br.Src, br.buf)
	if err != nil {
		br.Err = err
	}

	br.LastIndex = br.Index
	br.Index += nread

	return br.Err == nil
}

// Bytes returns the data of the last ReadBytes call. It is only valid
// until the next read.
func (br *BinaryReader) Bytes() []byte {
	return br.buf
}

// ReadFull fills p.
func (br *BinaryReader) ReadFull(p []byte) (ok bool) {
	if br.Err != nil {
		return false
	}
	nread, err := io.ReadFull(br.Src, p)
	br.Err = err
	br.LastIndex = br.Index
	br.Index += nread
	return err == nil
}

func (br *BinaryReader) Read(p []byte) (n int, err error) {
	n, err = br.Src.Read(p)
	br.LastIndex = br.Index
	br.Index += n
	return n, err
}

func (br *BinaryReader) ReadUInt8(i *int) (ok bool) {
	if !br.ReadBytes(1) {
		return false
	}
	*i = int(br.buf[0])
	return true
}

func (br *BinaryReader) ReadUInt16(i *int) (ok bool) {
	if !br.ReadBytes(2) {
		return false
	}
	*i = int(br.Order.Uint16(br.buf))
	return true
}

func (br *BinaryReader) ReadUInt32(i *int) (ok bool) {
	if !br.ReadBytes(4) {
		return false
	}
	*i = int(br.Order.Uint32(br.buf))
	return true
}

func (br *BinaryReader) ReadRef(data any) (ok bool) {
	if br.Err != nil {
		return false
	}
	err := binary.Read(br.Src, br.Order, data)
	br.Err = err
	br.LastIndex = br.Index
	if err == nil {
		br.Index += binary.Size(data)
	}
	return err == nil
}

// BinaryWriter is the writing counterpart of BinaryReader.
type BinaryWriter struct {
	Order binary.ByteOrder
	Dst   io.Writer
	Index int
	Err   error
	buf   [4]byte
}

func (bw *BinaryWriter) WriteBytes(p []byte) (ok bool) {
	if bw.Err != nil {
		return false
	}

	n, err := bw.Dst.Write(p)
	bw.Index += n
	if err != nil {
		bw.Err = err
		return false
	}
	return true
}

func (bw *BinaryWriter) Write(p []byte) (n int, err error) {
	n, err = bw.Dst.Write(p)
	bw.Index += n
	return n, err
}

func (bw *BinaryWriter) WriteUInt8(i uint8) (ok bool) {
	bw.buf[0] = i
	return bw.WriteBytes(bw.buf[:1])
}

func (bw *BinaryWriter) WriteUInt32(i uint32) (ok bool) {
	bw.Order.PutUint32(bw.buf[:], i)
	return bw.WriteBytes(bw.buf[:4])
}

func (bw *BinaryWriter) WriteUInt16(i uint16) (ok bool) {
	bw.Order.PutUint16(bw.buf[:], i)
	return bw.WriteBytes(bw.buf[:2])
}

func (bw *BinaryWriter) WriteRef(data any) (ok bool) {
	if bw.Err != nil {
		return false
	}
	err := binary.Write(bw.Dst, bw.Order, data)
	bw.Err = err
	if err == nil {
		bw.Index += binary.Size(data)
	}
	return err == nil
}

func newBinaryReader(r io.Reader) (br *BinaryReader, owned bool) {
	if br, ok := r.(*BinaryReader); ok {
		return br, false
	}
	return &BinaryReader{Src: r, Order: binary.LittleEndian}, true
}

func newBinaryWriter(w io.Writer) (bw *BinaryWriter, owned bool) {
	if bw, ok := w.(*BinaryWriter); ok {
		return bw, false
	}
	return &BinaryWriter{Dst: w, Order: binary.LittleEndian}, true
}
