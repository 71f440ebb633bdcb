package libio_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"iblbake/libio"
)

func TestHdrRoundTrip(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		opts          *libio.HdrOptions
	}{
		{"rle", 32, 16, nil},
		{"flat", 32, 16, &libio.HdrOptions{Flat: true}},
		{"narrow", 4, 4, nil},
		{"exposure", 16, 2, &libio.HdrOptions{Exposure: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := randomFloats(tt.width*tt.height*4, 0, 50)
			src := libio.NewFloatImage(data, 4, tt.width, tt.height)

			buf := &bytes.Buffer{}
			if err := libio.EncodeHdr(buf, src, tt.opts); err != nil {
				t.Fatal(err)
			}

			w, h, err := libio.DecodeHdrConfig(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatal(err)
			}
			if w != tt.width || h != tt.height {
				t.Errorf("size should be: %dx%d but is %dx%d", tt.width, tt.height, w, h)
			}

			dst, err := libio.DecodeHdr(buf, 4)
			if err != nil {
				t.Fatal(err)
			}
			if len(dst.Pix) != len(data) {
				t.Fatalf("decoded %d values, want %d", len(dst.Pix), len(data))
			}
			if e := rgbeError(dst.Pix, data, 4); e > 1.0/128 {
				t.Errorf("rgbe error should be below: %.4f but is %.4f", 1.0/128, e)
			}
			for i := 3; i < len(dst.Pix); i += 4 {
				if dst.Pix[i] != 1 {
					t.Fatalf("alpha should be 1, is %v", dst.Pix[i])
				}
			}
		})
	}
}

func TestHdrRleCompressesRuns(t *testing.T) {
	const width = 256
	data := make([]float32, width*3)
	for i := range data {
		data[i] = 0.75
	}

	rle, flat := &bytes.Buffer{}, &bytes.Buffer{}
	img := libio.NewFloatImage(data, 3, width, 1)
	if err := libio.EncodeHdr(rle, img, nil); err != nil {
		t.Fatal(err)
	}
	if err := libio.EncodeHdr(flat, img, &libio.HdrOptions{Flat: true}); err != nil {
		t.Fatal(err)
	}
	if rle.Len() >= flat.Len()/4 {
		t.Errorf("constant scanline should compress, rle %d bytes, flat %d bytes", rle.Len(), flat.Len())
	}

	dst, err := libio.DecodeHdr(rle, 3)
	if err != nil {
		t.Fatal(err)
	}
	if e := rgbeError(dst.Pix, data, 3); e > 1.0/128 {
		t.Errorf("rgbe error should be below: %.4f but is %.4f", 1.0/128, e)
	}
}

func TestHdrHeader(t *testing.T) {
	pixel := string([]byte{128, 64, 32, 129})
	tests := []struct {
		name   string
		header string
		valid  bool
	}{
		{"radiance", "#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 +X 1\n", true},
		{"rgbe", "#?RGBE\n# comment\nGAMMA=1.0\n\n-Y 1 +X 1\n", true},
		{"xyz", "#?RADIANCE\nFORMAT=32-bit_rle_xyze\n\n-Y 1 +X 1\n", false},
		{"magic", "P6\n\n-Y 1 +X 1\n", false},
		{"orientation", "#?RADIANCE\n\n+Y 1 +X 1\n", false},
		{"size", "#?RADIANCE\n\n-Y 0 +X 1\n", false},
	}

	for _, tt := range tests {
		img, err := libio.DecodeHdr(strings.NewReader(tt.header+pixel), 3)
		if !tt.valid {
			if !errors.Is(err, libio.ErrHdrFormat) {
				t.Errorf("%s: should fail with ErrHdrFormat, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		// 128.5 * 2^(129-136)
		if want := float32(128.5) / 128; img.Pix[0] != want {
			t.Errorf("%s: red should be: %.4f but is %.4f", tt.name, want, img.Pix[0])
		}
	}
}

func TestHdrExposure(t *testing.T) {
	pixel := string([]byte{128, 128, 128, 129})
	img, err := libio.DecodeHdr(strings.NewReader("#?RADIANCE\nEXPOSURE=2\nEXPOSURE=0.5\nEXPOSURE=4\n\n-Y 1 +X 1\n"+pixel), 4)
	if err != nil {
		t.Fatal(err)
	}
	if want := float32(128.5) / 128 / 4; img.Pix[0] != want || img.Pix[3] != 1 {
		t.Errorf("exposure should be divided out, should be: %.4f but is %.4f", want, img.Pix[0])
	}
}

func TestHdrTruncated(t *testing.T) {
	img := libio.NewFloatImage(randomFloats(16*4*3, 0, 1), 3, 16, 4)
	buf := &bytes.Buffer{}
	if err := libio.EncodeHdr(buf, img, nil); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if _, err := libio.DecodeHdr(bytes.NewReader(data[:len(data)-5]), 3); err == nil {
		t.Error("truncated file should fail to decode")
	}
}

func BenchmarkEncodeHdr(b *testing.B) {
	img := libio.NewFloatImage(randomFloats(512*256*3, 0, 10), 3, 512, 256)
	buf := &bytes.Buffer{}
	for i := 0; i < b.N; i++ {
		buf.Reset()
		libio.EncodeHdr(buf, img, nil)
	}
}

func BenchmarkDecodeHdr(b *testing.B) {
	img := libio.NewFloatImage(randomFloats(512*256*3, 0, 10), 3, 512, 256)
	buf := &bytes.Buffer{}
	libio.EncodeHdr(buf, img, nil)
	data := buf.Bytes()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		libio.DecodeHdr(bytes.NewReader(data), 3)
	}
}
