package libio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	hdrMagic        = "#?RADIANCE"
	hdrMagicAlt     = "#?RGBE"
	hdrFormat       = "32-bit_rle_rgbe"
	hdrMinRleWidth  = 8
	hdrMaxRleWidth  = 0x7fff
	hdrMaxRunLength = 127
)

var ErrHdrFormat = errors.New("invalid radiance hdr file")

// HdrOptions control how a Radiance file is written.
type HdrOptions struct {
	// Flat disables run length encoding of scanlines.
	Flat bool
	// Exposure is recorded in the header. Values are written unscaled.
	Exposure float32
}

// EncodeHdr writes img as a Radiance RGBE file. img must have at least 3
// channels; any further channel is dropped.
func EncodeHdr(w io.Writer, img *FloatImage, opts *HdrOptions) (err error) {
	if err := img.Validate(); err != nil {
		return err
	}
	if img.Channels < 3 {
		return fmt.Errorf("hdr needs at least 3 channels, image has %d", img.Channels)
	}
	if opts == nil {
		opts = &HdrOptions{}
	}

	bufw := bufio.NewWriter(w)
	bw := &BinaryWriter{Dst: bufw}
	defer func() {
		if err == nil {
			err = bw.Err
		}
		if err == nil {
			err = bufw.Flush()
		}
	}()

	header := hdrMagic + "\n" + "FORMAT=" + hdrFormat + "\n"
	if opts.Exposure != 0 {
		header += fmt.Sprintf("EXPOSURE=%g\n", opts.Exposure)
	}
	header += fmt.Sprintf("\n-Y %d +X %d\n", img.Height, img.Width)
	if !bw.WriteBytes([]byte(header)) {
		return fmt.Errorf("could not write hdr header: %w", bw.Err)
	}

	row := img.Width * img.Channels
	scanline := make([]byte, img.Width*4)
	rle := !opts.Flat && img.Width >= hdrMinRleWidth && img.Width <= hdrMaxRleWidth
	for y := 0; y < img.Height; y++ {
		EncodeRgbe(img.Channels, img.Pix[y*row:(y+1)*row], scanline)
		if rle {
			writeRleScanline(bw, scanline)
		} else {
			bw.WriteBytes(scanline)
		}
		if bw.Err != nil {
			return fmt.Errorf("could not write hdr scanline %d: %w", y, bw.Err)
		}
	}
	return nil
}

func writeRleScanline(bw *BinaryWriter, scanline []byte) {
	width := len(scanline) / 4
	bw.WriteBytes([]byte{2, 2, byte(width >> 8), byte(width & 0xff)})
	component := make([]byte, width)
	for c := 0; c < 4; c++ {
		for i := 0; i < width; i++ {
			component[i] = scanline[i*4+c]
		}
		writeRleBytes(bw, component)
	}
}

// writeRleBytes encodes one component of a scanline. Runs shorter than 4
// bytes are stored as literals.
func writeRleBytes(bw *BinaryWriter, data []byte) {
	const minRun = 4
	n := len(data)
	cur := 0
	for cur < n {
		begRun := cur
		runCount, oldRunCount := 0, 0
		for runCount < minRun && begRun < n {
			begRun += runCount
			oldRunCount = runCount
			runCount = 1
			for begRun+runCount < n && runCount < hdrMaxRunLength && data[begRun] == data[begRun+runCount] {
				runCount++
			}
		}
		// a short run right before the long one
		if oldRunCount > 1 && oldRunCount == begRun-cur {
			bw.WriteBytes([]byte{byte(128 + oldRunCount), data[cur]})
			cur = begRun
		}
		for cur < begRun {
			nonRun := begRun - cur
			if nonRun > 128 {
				nonRun = 128
			}
			bw.WriteUInt8(byte(nonRun))
			bw.WriteBytes(data[cur : cur+nonRun])
			cur += nonRun
		}
		if runCount >= minRun {
			bw.WriteBytes([]byte{byte(128 + runCount), data[begRun]})
			cur += runCount
		}
	}
}

// DecodeHdr reads a Radiance RGBE file into a 3 or 4 channel float image.
// Flat, old style run length and new style run length scanlines are
// accepted. Values are divided by the product of all EXPOSURE lines.
func DecodeHdr(r io.Reader, channels int) (*FloatImage, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("hdr decodes to 3 or 4 channels, not %d", channels)
	}
	bufr := bufio.NewReader(r)
	width, height, exposure, headerBytes, err := readHdrHeader(bufr)
	if err != nil {
		return nil, err
	}

	br := &BinaryReader{Src: bufr, Index: headerBytes}
	pix := make([]float32, width*height*channels)
	scanline := make([]byte, width*4)
	for y := 0; y < height; y++ {
		if err := readScanline(br, scanline); err != nil {
			return nil, fmt.Errorf("hdr scanline %d: %w", y, err)
		}
		DecodeRgbe(channels, scanline, pix[y*width*channels:])
	}

	if exposure != 1 {
		for i := range pix {
			if channels == 4 && i%4 == 3 {
				continue
			}
			pix[i] /= exposure
		}
	}
	return NewFloatImage(pix, channels, width, height), nil
}

// DecodeHdrConfig reads only the header and returns the image size.
func DecodeHdrConfig(r io.Reader) (width, height int, err error) {
	width, height, _, _, err = readHdrHeader(bufio.NewReader(r))
	return width, height, err
}

func readHdrHeader(r *bufio.Reader) (width, height int, exposure float32, n int, err error) {
	exposure = 1
	line, err := r.ReadString('\n')
	n += len(line)
	if err != nil {
		return 0, 0, 0, n, fmt.Errorf("%w: missing magic: %v", ErrHdrFormat, err)
	}
	line = strings.TrimSpace(line)
	if line != hdrMagic && line != hdrMagicAlt {
		return 0, 0, 0, n, fmt.Errorf("%w: bad magic %q", ErrHdrFormat, line)
	}

	for {
		line, err = r.ReadString('\n')
		n += len(line)
		if err != nil {
			return 0, 0, 0, n, fmt.Errorf("%w: unterminated header; byte 0x%08x", ErrHdrFormat, n)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		key, value, _ := strings.Cut(line, "=")
		switch key {
		case "FORMAT":
			if value != hdrFormat {
				return 0, 0, 0, n, fmt.Errorf("%w: unsupported format %q", ErrHdrFormat, value)
			}
		case "EXPOSURE":
			e, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
			if err != nil || e <= 0 {
				return 0, 0, 0, n, fmt.Errorf("%w: bad exposure %q", ErrHdrFormat, value)
			}
			exposure *= float32(e)
		}
	}

	line, err = r.ReadString('\n')
	n += len(line)
	if err != nil {
		return 0, 0, 0, n, fmt.Errorf("%w: missing resolution; byte 0x%08x", ErrHdrFormat, n)
	}
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != "-Y" || fields[2] != "+X" {
		return 0, 0, 0, n, fmt.Errorf("%w: unsupported orientation %q", ErrHdrFormat, strings.TrimSpace(line))
	}
	height, errh := strconv.Atoi(fields[1])
	width, errw := strconv.Atoi(fields[3])
	if errh != nil || errw != nil || width <= 0 || height <= 0 {
		return 0, 0, 0, n, fmt.Errorf("%w: bad resolution %q", ErrHdrFormat, strings.TrimSpace(line))
	}
	return width, height, exposure, n, nil
}

func readScanline(br *BinaryReader, scanline []byte) error {
	width := len(scanline) / 4
	if width < hdrMinRleWidth || width > hdrMaxRleWidth {
		return readOldScanline(br, scanline, nil)
	}
	if !br.ReadFull(scanline[:4]) {
		return fmt.Errorf("%w; byte 0x%08x", br.Err, br.LastIndex)
	}
	if scanline[0] != 2 || scanline[1] != 2 || scanline[2]&0x80 != 0 {
		// not run length encoded, the four bytes are the first pixel
		return readOldScanline(br, scanline[4:], scanline[:4])
	}
	if int(scanline[2])<<8|int(scanline[3]) != width {
		return fmt.Errorf("%w: scanline width mismatch; byte 0x%08x", ErrHdrFormat, br.LastIndex)
	}

	component := make([]byte, width)
	for c := 0; c < 4; c++ {
		for x := 0; x < width; {
			var count int
			if !br.ReadUInt8(&count) {
				return fmt.Errorf("%w; byte 0x%08x", br.Err, br.LastIndex)
			}
			if count > 128 {
				count -= 128
				var value int
				if count == 0 || x+count > width || !br.ReadUInt8(&value) {
					return fmt.Errorf("%w: bad run; byte 0x%08x", ErrHdrFormat, br.LastIndex)
				}
				for i := 0; i < count; i++ {
					component[x+i] = byte(value)
				}
			} else {
				if count == 0 || x+count > width || !br.ReadFull(component[x:x+count]) {
					return fmt.Errorf("%w: bad literal; byte 0x%08x", ErrHdrFormat, br.LastIndex)
				}
			}
			x += count
		}
		for x := 0; x < width; x++ {
			scanline[x*4+c] = component[x]
		}
	}
	return nil
}

// readOldScanline reads flat pixels where (1, 1, 1, n) repeats the previous
// pixel. prev is the already read first pixel, if any.
func readOldScanline(br *BinaryReader, rest []byte, prev []byte) error {
	var last [4]byte
	if prev != nil {
		copy(last[:], prev)
	}
	shift := 0
	for i := 0; i < len(rest); {
		if !br.ReadFull(rest[i : i+4]) {
			return fmt.Errorf("%w; byte 0x%08x", br.Err, br.LastIndex)
		}
		px := rest[i : i+4]
		if px[0] == 1 && px[1] == 1 && px[2] == 1 {
			count := int(px[3]) << shift
			if i+count*4 > len(rest) {
				return fmt.Errorf("%w: run overflows scanline; byte 0x%08x", ErrHdrFormat, br.LastIndex)
			}
			for j := 0; j < count; j++ {
				copy(rest[i+j*4:], last[:])
			}
			i += count * 4
			shift += 8
			continue
		}
		copy(last[:], px)
		shift = 0
		i += 4
	}
	return nil
}
