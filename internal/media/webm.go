package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// EBML/WebM element IDs. IDs are stored with their length-marker bit kept,
// matching how they appear on the wire.
const (
	idEBMLHeader    = 0x1A45DFA3
	idSegment       = 0x18538067
	idInfo          = 0x1549A966
	idTimecodeScale = 0x2AD7B1
	idDuration      = 0x4489
)

// ebmlUnknownSize marks an element whose size was written as "unknown".
// Streamed WebM writes the Segment this way, which is also why the file
// carries no Duration element.
const ebmlUnknownSize = int64(-1)

// timecodeScaleMS is a 1 ms timecode scale in nanoseconds. The patched
// Duration value is expressed in these units.
const timecodeScaleMS = 1000000

// element is a parsed EBML element: its id, the offset of its first header
// byte, the offset of its body and the body size (ebmlUnknownSize when the
// writer did not know it).
type element struct {
	id        uint64
	headerOff int
	bodyOff   int
	bodySize  int64
}

// IsWebM reports whether data starts with an EBML header, which is how both
// WebM and Matroska containers begin.
func IsWebM(data []byte) bool {
	return len(data) >= 4 &&
		binary.BigEndian.Uint32(data[0:4]) == idEBMLHeader
}

// FixWebMDuration returns a copy of data with the Segment Info element
// rewritten so that TimecodeScale is 1 ms and Duration holds d. Streamed
// WebM recordings omit Duration entirely, so the Info element may grow; the
// Segment size in such files is unknown, which means no parent sizes need
// to cascade. Malformed input is returned untouched along with an error.
func FixWebMDuration(data []byte, d time.Duration) ([]byte, error) {
	if !IsWebM(data) {
		return data, fmt.Errorf("not an EBML container")
	}

	header, err := readElement(data, 0)
	if err != nil {
		return data, fmt.Errorf("read EBML header: %w", err)
	}
	if header.bodySize == ebmlUnknownSize {
		return data, fmt.Errorf("EBML header has unknown size")
	}

	segment, err := readElement(data, header.bodyOff+int(header.bodySize))
	if err != nil {
		return data, fmt.Errorf("read segment: %w", err)
	}
	if segment.id != idSegment {
		return data, fmt.Errorf("expected segment element, got 0x%X", segment.id)
	}

	segmentEnd := len(data)
	if segment.bodySize != ebmlUnknownSize {
		segmentEnd = segment.bodyOff + int(segment.bodySize)
		if segmentEnd > len(data) {
			return data, fmt.Errorf("segment size %d exceeds data length %d", segment.bodySize, len(data))
		}
	}

	info, err := findChild(data, segment.bodyOff, segmentEnd, idInfo)
	if err != nil {
		return data, fmt.Errorf("locate info element: %w", err)
	}
	if info.bodySize == ebmlUnknownSize {
		return data, fmt.Errorf("info element has unknown size")
	}

	infoEnd := info.bodyOff + int(info.bodySize)
	newInfoBody, err := rewriteInfoBody(data[info.bodyOff:infoEnd], d)
	if err != nil {
		return data, fmt.Errorf("rewrite info element: %w", err)
	}

	newInfo := make([]byte, 0, 8+len(newInfoBody))
	newInfo = appendElementID(newInfo, idInfo)
	newInfo = appendElementSize(newInfo, len(newInfoBody))
	newInfo = append(newInfo, newInfoBody...)

	delta := len(newInfo) - (infoEnd - info.headerOff)

	out := make([]byte, 0, len(data)+delta)
	out = append(out, data[:info.headerOff]...)
	out = append(out, newInfo...)
	out = append(out, data[infoEnd:]...)

	// A known segment size must absorb the growth of its Info child.
	if segment.bodySize != ebmlUnknownSize && delta != 0 {
		if err := patchSize(out, segment.headerOff, segment.bodySize+int64(delta)); err != nil {
			return data, fmt.Errorf("patch segment size: %w", err)
		}
	}

	return out, nil
}

// rewriteInfoBody returns the Info body with TimecodeScale forced to 1 ms
// and Duration set to d, appending the Duration element when absent.
func rewriteInfoBody(body []byte, d time.Duration) ([]byte, error) {
	durationMS := float64(d) / float64(time.Millisecond)

	out := make([]byte, 0, len(body)+16)
	haveDuration := false

	for off := 0; off < len(body); {
		el, err := readElement(body, off)
		if err != nil {
			return nil, err
		}
		if el.bodySize == ebmlUnknownSize {
			return nil, fmt.Errorf("child 0x%X has unknown size", el.id)
		}
		end := el.bodyOff + int(el.bodySize)
		if end > len(body) {
			return nil, fmt.Errorf("child 0x%X overruns info body", el.id)
		}

		switch el.id {
		case idTimecodeScale:
			out = appendUintElement(out, idTimecodeScale, timecodeScaleMS)
		case idDuration:
			out = appendFloatElement(out, idDuration, durationMS)
			haveDuration = true
		default:
			out = append(out, body[el.headerOff:end]...)
		}
		off = end
	}

	if !haveDuration {
		out = appendFloatElement(out, idDuration, durationMS)
	}
	return out, nil
}

// findChild scans the children of a master element between start and end
// for the given id. Children with unknown sizes terminate the scan since
// their extent cannot be determined.
func findChild(data []byte, start, end int, id uint64) (element, error) {
	for off := start; off < end; {
		el, err := readElement(data, off)
		if err != nil {
			return element{}, err
		}
		if el.id == id {
			return el, nil
		}
		if el.bodySize == ebmlUnknownSize {
			return element{}, fmt.Errorf("element 0x%X not found before unknown-size element 0x%X", id, el.id)
		}
		off = el.bodyOff + int(el.bodySize)
	}
	return element{}, fmt.Errorf("element 0x%X not found", id)
}

// readElement parses the element header at off.
func readElement(data []byte, off int) (element, error) {
	id, idLen, err := readElementID(data, off)
	if err != nil {
		return element{}, err
	}

	size, sizeLen, err := readElementSize(data, off+idLen)
	if err != nil {
		return element{}, err
	}

	return element{
		id:        id,
		headerOff: off,
		bodyOff:   off + idLen + sizeLen,
		bodySize:  size,
	}, nil
}

// readElementID reads a 1-4 byte element id, keeping the marker bit.
func readElementID(data []byte, off int) (uint64, int, error) {
	if off >= len(data) {
		return 0, 0, fmt.Errorf("truncated element id at offset %d", off)
	}

	first := data[off]
	var length int
	switch {
	case first&0x80 != 0:
		length = 1
	case first&0x40 != 0:
		length = 2
	case first&0x20 != 0:
		length = 3
	case first&0x10 != 0:
		length = 4
	default:
		return 0, 0, fmt.Errorf("invalid element id byte 0x%02X at offset %d", first, off)
	}

	if off+length > len(data) {
		return 0, 0, fmt.Errorf("truncated element id at offset %d", off)
	}

	var id uint64
	for i := 0; i < length; i++ {
		id = id<<8 | uint64(data[off+i])
	}
	return id, length, nil
}

// readElementSize reads a 1-8 byte size field, stripping the marker bit.
// An all-ones value encodes an unknown size.
func readElementSize(data []byte, off int) (int64, int, error) {
	if off >= len(data) {
		return 0, 0, fmt.Errorf("truncated element size at offset %d", off)
	}

	first := data[off]
	length := 0
	for i := 0; i < 8; i++ {
		if first&(0x80>>i) != 0 {
			length = i + 1
			break
		}
	}
	if length == 0 {
		return 0, 0, fmt.Errorf("invalid element size byte 0x%02X at offset %d", first, off)
	}

	if off+length > len(data) {
		return 0, 0, fmt.Errorf("truncated element size at offset %d", off)
	}

	value := uint64(first) & (0xFF >> length)
	allOnes := value == (0x7F >> (length - 1))
	for i := 1; i < length; i++ {
		b := data[off+i]
		value = value<<8 | uint64(b)
		allOnes = allOnes && b == 0xFF
	}

	if allOnes {
		return ebmlUnknownSize, length, nil
	}
	return int64(value), length, nil
}

// patchSize rewrites the size field of the element at off in place, keeping
// its original byte width.
func patchSize(data []byte, off int, newSize int64) error {
	_, idLen, err := readElementID(data, off)
	if err != nil {
		return err
	}

	_, sizeLen, err := readElementSize(data, off+idLen)
	if err != nil {
		return err
	}

	maxValue := int64(1)<<(7*sizeLen) - 2 // all-ones means unknown
	if newSize < 0 || newSize > maxValue {
		return fmt.Errorf("size %d does not fit in %d bytes", newSize, sizeLen)
	}

	sizeOff := off + idLen
	for i := sizeLen - 1; i >= 0; i-- {
		data[sizeOff+i] = byte(newSize)
		newSize >>= 8
	}
	data[sizeOff] |= 0x80 >> (sizeLen - 1)
	return nil
}

// appendElementID appends the raw element id bytes.
func appendElementID(dst []byte, id uint64) []byte {
	length := 1
	for shift := 8; shift < 64; shift += 8 {
		if id>>shift == 0 {
			break
		}
		length++
	}
	for i := length - 1; i >= 0; i-- {
		dst = append(dst, byte(id>>(8*i)))
	}
	return dst
}

// appendElementSize appends size as a minimal-width EBML size field.
func appendElementSize(dst []byte, size int) []byte {
	length := 1
	for length < 8 && int64(size) > int64(1)<<(7*length)-2 {
		length++
	}
	buf := make([]byte, length)
	v := size
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	buf[0] |= 0x80 >> (length - 1)
	return append(dst, buf...)
}

// appendUintElement appends an unsigned integer element with minimal width.
func appendUintElement(dst []byte, id uint64, value uint64) []byte {
	length := 1
	for value>>(8*length) != 0 {
		length++
	}
	dst = appendElementID(dst, id)
	dst = appendElementSize(dst, length)
	for i := length - 1; i >= 0; i-- {
		dst = append(dst, byte(value>>(8*i)))
	}
	return dst
}

// appendFloatElement appends an 8-byte float element.
func appendFloatElement(dst []byte, id uint64, value float64) []byte {
	dst = appendElementID(dst, id)
	dst = appendElementSize(dst, 8)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(value))
	return append(dst, buf[:]...)
}

// WebMDuration reads the Duration element of a WebM container, if present,
// interpreted against its TimecodeScale. It reports false when the file
// carries no Duration, which is the normal state of a streamed recording.
func WebMDuration(data []byte) (time.Duration, bool, error) {
	if !IsWebM(data) {
		return 0, false, fmt.Errorf("not an EBML container")
	}

	header, err := readElement(data, 0)
	if err != nil {
		return 0, false, fmt.Errorf("read EBML header: %w", err)
	}
	if header.bodySize == ebmlUnknownSize {
		return 0, false, fmt.Errorf("EBML header has unknown size")
	}

	segment, err := readElement(data, header.bodyOff+int(header.bodySize))
	if err != nil {
		return 0, false, fmt.Errorf("read segment: %w", err)
	}
	if segment.id != idSegment {
		return 0, false, fmt.Errorf("expected segment element, got 0x%x", segment.id)
	}

	segmentEnd := len(data)
	if segment.bodySize != ebmlUnknownSize {
		segmentEnd = segment.bodyOff + int(segment.bodySize)
	}

	info, err := findChild(data, segment.bodyOff, segmentEnd, idInfo)
	if err != nil {
		return 0, false, fmt.Errorf("locate info element: %w", err)
	}
	if info.bodySize == ebmlUnknownSize {
		return 0, false, fmt.Errorf("info element has unknown size")
	}

	scale := uint64(timecodeScaleMS)
	var durationTicks float64
	haveDuration := false

	infoEnd := info.bodyOff + int(info.bodySize)
	for off := info.bodyOff; off < infoEnd; {
		el, err := readElement(data, off)
		if err != nil {
			return 0, false, fmt.Errorf("read info child: %w", err)
		}
		if el.bodySize == ebmlUnknownSize {
			return 0, false, fmt.Errorf("info child has unknown size")
		}
		end := el.bodyOff + int(el.bodySize)

		switch el.id {
		case idTimecodeScale:
			scale = 0
			for _, b := range data[el.bodyOff:end] {
				scale = scale<<8 | uint64(b)
			}
		case idDuration:
			switch el.bodySize {
			case 4:
				durationTicks = float64(math.Float32frombits(binary.BigEndian.Uint32(data[el.bodyOff:end])))
			case 8:
				durationTicks = math.Float64frombits(binary.BigEndian.Uint64(data[el.bodyOff:end]))
			default:
				return 0, false, fmt.Errorf("unexpected duration width %d", el.bodySize)
			}
			haveDuration = true
		}
		off = end
	}

	if !haveDuration {
		return 0, false, nil
	}
	return time.Duration(durationTicks * float64(scale)), true, nil
}
