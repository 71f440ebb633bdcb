package libio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/pierrec/lz4/v4"
)

const MagicNumberF32 = 0x6d16837d

type FloatImageVersion uint32

const (
	F32Version1_001_000 = FloatImageVersion(1_001_000)
)

type FloatImageCompression uint32

const (
	FloatImageCompressionNone = FloatImageCompression(iota)
	// FloatImageCompressionFixedPoint16Lz4 quantizes every channel to 16 bit
	// over its own value range and compresses the result with lz4.
	FloatImageCompressionFixedPoint16Lz4
)

type FloatImageHeader struct {
	Check         uint32
	Version       FloatImageVersion
	Width, Height uint32
	Channels      uint8
	Compression   FloatImageCompression
	Unused        [14]uint8
}

func DecodeFloatImage(r io.Reader) (img *FloatImage, err error) {
	br, owned := newBinaryReader(r)
	if owned {
		defer func() {
			if br.Err != nil {
				if err == nil {
					err = br.Err
				} else {
					err = fmt.Errorf("%v: %w", err, br.Err)
				}
			}
		}()
	}

	header := FloatImageHeader{}
	if !br.ReadRef(&header) {
		return nil, fmt.Errorf("expected f32 header; byte 0x%08x", br.LastIndex)
	}

	if header.Check != MagicNumberF32 {
		return nil, fmt.Errorf("f32 header is corrupt; byte 0x%08x", br.LastIndex)
	}

	if header.Version != F32Version1_001_000 {
		return nil, fmt.Errorf("f32 version %d unsupported; byte 0x%08x", header.Version, br.LastIndex)
	}

	if header.Width == 0 || header.Height == 0 || header.Channels == 0 {
		return nil, fmt.Errorf("f32 image is %dx%dx%d; byte 0x%08x", header.Width, header.Height, header.Channels, br.LastIndex)
	}

	var data []float32
	count := int(header.Width * header.Height)

	switch header.Compression {
	case FloatImageCompressionNone:
		data = make([]float32, count*int(header.Channels))
		if !br.ReadRef(data) {
			return nil, fmt.Errorf("could not read f32 pixels; byte 0x%08x", br.LastIndex)
		}
	case FloatImageCompressionFixedPoint16Lz4:
		rangeBytes := 4 * 2 * int(header.Channels)
		dataBytes := count * int(header.Channels) * 2
		buf := make([]byte, rangeBytes+dataBytes)
		lzr := lz4.NewReader(br.Src)
		_, err = io.ReadFull(lzr, buf)
		if err != nil {
			break
		}
		data, err = decompressFixedPoint16(int(header.Channels), count, buf)
	default:
		return nil, fmt.Errorf("f32 compression %d unsupported; byte 0x%08x", header.Compression, br.LastIndex)
	}

	if err != nil {
		return nil, fmt.Errorf("could not decompress f32 pixels: %w", err)
	}

	return NewFloatImage(data, int(header.Channels), int(header.Width), int(header.Height)), nil
}

func decompressFixedPoint16(channels, count int, data []byte) ([]float32, error) {
	result := make([]float32, count*channels)
	br := &BinaryReader{
		Src:   bytes.NewReader(data),
		Order: binary.LittleEndian,
	}
	for ch := 0; ch < channels; ch++ {
		decompressChannelFixedPoint16(channels, count, result, br, ch)
		if br.Err != nil {
			return nil, br.Err
		}
	}
	return result, nil
}

func decompressChannelFixedPoint16(channels, count int, pix []float32, br *BinaryReader, ch int) {
	var imin, imax int
	br.ReadUInt32(&imin)
	br.ReadUInt32(&imax)

	min := math32.Float32frombits(uint32(imin))
	max := math32.Float32frombits(uint32(imax))

	data := make([]uint16, count)
	br.ReadRef(data)

	r := max - min
	for i := 0; i < count; i++ {
		fix := data[i]
		flt := (float32(fix)/0xffff)*r + min
		pix[i*channels+ch] = flt
	}
}

func EncodeFloatImage(w io.Writer, img *FloatImage, compression FloatImageCompression) (err error) {
	if err := img.Validate(); err != nil {
		return err
	}

	bw, owned := newBinaryWriter(w)
	if owned {
		defer func() {
			if bw.Err != nil {
				if err == nil {
					err = bw.Err
				} else {
					err = fmt.Errorf("%v: %w", err, bw.Err)
				}
			}
		}()
	}

	header := FloatImageHeader{
		Check:       MagicNumberF32,
		Version:     F32Version1_001_000,
		Width:       uint32(img.Width),
		Height:      uint32(img.Height),
		Channels:    uint8(img.Channels),
		Compression: compression,
	}

	if !bw.WriteRef(header) {
		return fmt.Errorf("could not write f32 header: %w", bw.Err)
	}

	var data []byte

	switch compression {
	case FloatImageCompressionNone:
		buf := bytes.NewBuffer(make([]byte, 0, img.Bytes()))
		err = binary.Write(buf, bw.Order, img.Pix)
		data = buf.Bytes()
	case FloatImageCompressionFixedPoint16Lz4:
		data, err = compressFixedPoint16(img.Channels, img.Count(), img.Pix)
		if err != nil {
			break
		}
		buf := bytes.NewBuffer(nil)
		lzw := lz4.NewWriter(buf)
		err = lzw.Apply(lz4.CompressionLevelOption(lz4.Fast))
		if err != nil {
			break
		}
		_, err = lzw.Write(data)
		if err != nil {
			break
		}
		err = lzw.Close()
		data = buf.Bytes()
	default:
		return fmt.Errorf("f32 compression %d unsupported", compression)
	}

	if err != nil {
		return fmt.Errorf("could not compress f32 pixels: %w", err)
	}

	if !bw.WriteBytes(data) {
		return fmt.Errorf("could not write f32 encoded pixels: %w", bw.Err)
	}

	return nil
}

func compressFixedPoint16(channels int, count int, pix []float32) ([]byte, error) {
	rangeBytes := 4 * 2 * channels
	dataBytes := count * channels * 2
	buf := bytes.NewBuffer(make([]byte, 0, rangeBytes+dataBytes))
	bw := &BinaryWriter{Order: binary.LittleEndian, Dst: buf}
	for ch := 0; ch < channels; ch++ {
		compressChannelFixedPoint16(channels, count, pix, bw, ch)
		if bw.Err != nil {
			return nil, bw.Err
		}
	}
	return buf.Bytes(), nil
}

func compressChannelFixedPoint16(channels int, count int, pix []float32, bw *BinaryWriter, ch int) {
	var min, max float32 = math32.Inf(1), math32.Inf(-1)

	for i := 0; i < count; i++ {
		v := pix[i*channels+ch]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	bw.WriteUInt32(math32.Float32bits(min))
	bw.WriteUInt32(math32.Float32bits(max))

	r := max - min
	for i := 0; i < count; i++ {
		var fix uint16
		if r > 0 {
			flt := pix[i*channels+ch]
			fix = uint16(math32.Round(((flt - min) / r) * 0xffff))
		}
		bw.WriteUInt16(fix)
	}
}
