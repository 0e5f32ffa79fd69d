package compositor

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
)

// exrMagic is the 4-byte magic number every OpenEXR file begins with.
var exrMagic = [4]byte{0x76, 0x2f, 0x31, 0x01}

// This file implements the minimal subset of the OpenEXR format needed to
// round-trip a float32 RGBA raster written by this same package: a
// single-part, uncompressed, scanline image with R, G, B,
// A float32 channels. It is not a general-purpose EXR reader; it cannot
// read files an external renderer (PBRT) produces, only files produced by
// compositor.encodeEXR itself. PBRT's own EXR output is retained verbatim
// (never decoded) by the renderer adapter, so this limitation never blocks
// the render path; it only bounds what Compose can average.
const exrChannelCount = 4 // A, B, G, R: the channel list and pixel data use this fixed order

func encodeEXR(width, height int, samples []rgba128) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(exrMagic[:])
	// version: 2, no flags set (tiled/long-names/multipart all unset)
	binary.Write(&buf, binary.LittleEndian, uint32(2))

	writeStringAttr(&buf, "channels", "chlist", channelListBytes())
	writeStringAttr(&buf, "compression", "compression", []byte{0}) // NO_COMPRESSION
	writeStringAttr(&buf, "dataWindow", "box2i", box2iBytes(width, height))
	writeStringAttr(&buf, "displayWindow", "box2i", box2iBytes(width, height))
	writeStringAttr(&buf, "lineOrder", "lineOrder", []byte{0}) // INCREASING_Y
	writeStringAttr(&buf, "pixelAspectRatio", "float", float32Bytes(1))
	writeStringAttr(&buf, "screenWindowCenter", "v2f", append(float32Bytes(0), float32Bytes(0)...))
	writeStringAttr(&buf, "screenWindowWidth", "float", float32Bytes(1))
	buf.WriteByte(0) // end of header

	rowBytes := int64(width) * exrChannelCount * 4
	headerEnd := int64(buf.Len())
	offsetTableBytes := int64(height) * 8
	firstRowOffset := headerEnd + offsetTableBytes

	offsets := make([]int64, height)
	for y := 0; y < height; y++ {
		offsets[y] = firstRowOffset + int64(y)*(8+rowBytes)
	}
	for _, off := range offsets {
		binary.Write(&buf, binary.LittleEndian, uint64(off))
	}

	for y := 0; y < height; y++ {
		binary.Write(&buf, binary.LittleEndian, uint32(y))
		binary.Write(&buf, binary.LittleEndian, uint32(rowBytes))
		// Channels are written in alphabetical order: A, B, G, R.
		writeChannelRow(&buf, samples, width, y, 'a')
		writeChannelRow(&buf, samples, width, y, 'b')
		writeChannelRow(&buf, samples, width, y, 'g')
		writeChannelRow(&buf, samples, width, y, 'r')
	}

	return buf.Bytes(), nil
}

func writeChannelRow(buf *bytes.Buffer, samples []rgba128, width, y int, channel byte) {
	for x := 0; x < width; x++ {
		s := samples[y*width+x]
		var v float32
		switch channel {
		case 'r':
			v = float32(s.r)
		case 'g':
			v = float32(s.g)
		case 'b':
			v = float32(s.b)
		case 'a':
			v = float32(s.a)
		}
		binary.Write(buf, binary.LittleEndian, math.Float32bits(v))
	}
}

func channelListBytes() []byte {
	var b bytes.Buffer
	for _, name := range []string{"A", "B", "G", "R"} {
		b.WriteString(name)
		b.WriteByte(0)
		binary.Write(&b, binary.LittleEndian, uint32(1)) // pixel type: FLOAT
		binary.Write(&b, binary.LittleEndian, uint32(0)) // pLinear + reserved
		binary.Write(&b, binary.LittleEndian, uint32(1)) // xSampling
		binary.Write(&b, binary.LittleEndian, uint32(1)) // ySampling
	}
	b.WriteByte(0) // end of channel list
	return b.Bytes()
}

func box2iBytes(width, height int) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, int32(0))
	binary.Write(&b, binary.LittleEndian, int32(0))
	binary.Write(&b, binary.LittleEndian, int32(width-1))
	binary.Write(&b, binary.LittleEndian, int32(height-1))
	return b.Bytes()
}

func float32Bytes(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

func writeStringAttr(buf *bytes.Buffer, name, typ string, value []byte) {
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteString(typ)
	buf.WriteByte(0)
	binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	buf.Write(value)
}

func readCString(r *bytes.Reader) (string, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}

// decodeEXR parses the header attributes this package itself writes and
// reads back a width x height grid of rgba128 samples. It assumes
// uncompressed scanline data with R/G/B/A float32 channels in alphabetical
// channel order, exactly as encodeEXR produces.
func decodeEXR(content []byte) (int, int, []rgba128, error) {
	r := bytes.NewReader(content)
	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != exrMagic {
		return 0, 0, nil, errors.Extend(modules.ErrInternal, errors.New("not an EXR file"))
	}
	var version uint32
	binary.Read(r, binary.LittleEndian, &version)

	var width, height int
	for {
		name, err := readCString(r)
		if err != nil {
			return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
		}
		if name == "" {
			break
		}
		typ, err := readCString(r)
		if err != nil {
			return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
		}
		var size uint32
		binary.Read(r, binary.LittleEndian, &size)
		value := make([]byte, size)
		if _, err := r.Read(value); err != nil {
			return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
		}
		_ = typ
		if name == "dataWindow" {
			vr := bytes.NewReader(value)
			var xMin, yMin, xMax, yMax int32
			binary.Read(vr, binary.LittleEndian, &xMin)
			binary.Read(vr, binary.LittleEndian, &yMin)
			binary.Read(vr, binary.LittleEndian, &xMax)
			binary.Read(vr, binary.LittleEndian, &yMax)
			width = int(xMax-xMin) + 1
			height = int(yMax-yMin) + 1
		}
	}
	if width <= 0 || height <= 0 {
		return 0, 0, nil, errors.Extend(modules.ErrInternal, errors.New("EXR file missing dataWindow"))
	}

	// skip the scanline offset table.
	if _, err := r.Seek(int64(height)*8, io.SeekCurrent); err != nil {
		return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
	}

	samples := make([]rgba128, width*height)
	rowBytes := width * exrChannelCount * 4
	for y := 0; y < height; y++ {
		var rowY, rowSize uint32
		binary.Read(r, binary.LittleEndian, &rowY)
		binary.Read(r, binary.LittleEndian, &rowSize)
		if int(rowSize) != rowBytes {
			return 0, 0, nil, errors.Extend(modules.ErrInternal, errors.New("unexpected EXR scanline size"))
		}
		row := make([]byte, rowBytes)
		if _, err := r.Read(row); err != nil {
			return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
		}
		rr := bytes.NewReader(row)
		for _, channel := range []byte{'a', 'b', 'g', 'r'} {
			for x := 0; x < width; x++ {
				var bits uint32
				binary.Read(rr, binary.LittleEndian, &bits)
				v := float64(math.Float32frombits(bits))
				s := &samples[int(rowY)*width+x]
				switch channel {
				case 'r':
					s.r = v
				case 'g':
					s.g = v
				case 'b':
					s.b = v
				case 'a':
					s.a = v
				}
			}
		}
	}
	return width, height, samples, nil
}
