package sourcemap

import (
	"fmt"
	"sort"
	"strings"
)

// Base64 VLQ codec for the "mappings" field of a source map. Each segment
// field is a variable-length quantity: 5 data bits per base64 digit, low
// bits first, bit 5 as the continuation flag, and the sign carried in the
// lowest bit of the decoded value.

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Reverse = func() [128]int8 {
	var table [128]int8
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		table[base64Alphabet[i]] = int8(i)
	}
	return table
}()

const (
	vlqBaseShift       = 5
	vlqBaseMask        = (1 << vlqBaseShift) - 1 // 0b11111
	vlqContinuationBit = 1 << vlqBaseShift       // 0b100000
)

// decodeVLQ reads one signed VLQ value from s starting at offset pos.
// It returns the value and the offset of the next unread byte.
func decodeVLQ(s string, pos int) (value int, next int, err error) {
	shift := 0
	result := 0

	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("truncated VLQ sequence")
		}
		c := s[pos]
		if c >= 128 || base64Reverse[c] < 0 {
			return 0, pos, fmt.Errorf("invalid base64 character %q in VLQ sequence", c)
		}
		digit := int(base64Reverse[c])
		pos++

		result += (digit & vlqBaseMask) << shift
		if digit&vlqContinuationBit == 0 {
			break
		}
		shift += vlqBaseShift
		if shift > 32 {
			return 0, pos, fmt.Errorf("VLQ value exceeds 32 bits")
		}
	}

	// Lowest bit is the sign.
	if result&1 != 0 {
		return -(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// decodeMappings decodes a full base64-VLQ mappings string into absolute
// segments. Groups (generated lines) are separated by ';', segments within a
// line by ','. The generated column resets at each line; source index,
// original line, original column and name index accumulate across the whole
// string. Segments carry 1, 4 or 5 fields.
//
// decodeMappings is pure: it performs no I/O and does not validate indices
// against a particular map's sources/names tables (Parse does that).
func decodeMappings(mappings string) ([]Segment, error) {
	segments := make([]Segment, 0, strings.Count(mappings, ",")+strings.Count(mappings, ";")+1)

	genLine := 0
	srcIndex, origLine, origCol, nameIndex := 0, 0, 0, 0

	for _, lineGroup := range strings.Split(mappings, ";") {
		genCol := 0
		if lineGroup == "" {
			genLine++
			continue
		}
		for _, raw := range strings.Split(lineGroup, ",") {
			if raw == "" {
				continue
			}

			fields := make([]int, 0, 5)
			pos := 0
			for pos < len(raw) {
				v, next, err := decodeVLQ(raw, pos)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", genLine, err)
				}
				fields = append(fields, v)
				pos = next
			}

			switch len(fields) {
			case 1, 4, 5:
			default:
				return nil, fmt.Errorf("line %d: segment has %d fields, want 1, 4 or 5", genLine, len(fields))
			}

			genCol += fields[0]
			if genCol < 0 {
				return nil, fmt.Errorf("line %d: negative generated column", genLine)
			}

			seg := Segment{
				GeneratedLine:   genLine,
				GeneratedColumn: genCol,
				SourceIndex:     -1,
				OriginalLine:    -1,
				OriginalColumn:  -1,
				NameIndex:       -1,
			}

			if len(fields) >= 4 {
				srcIndex += fields[1]
				origLine += fields[2]
				origCol += fields[3]
				if srcIndex < 0 || origLine < 0 || origCol < 0 {
					return nil, fmt.Errorf("line %d: negative original position", genLine)
				}
				seg.SourceIndex = srcIndex
				seg.OriginalLine = origLine
				seg.OriginalColumn = origCol
			}
			if len(fields) == 5 {
				nameIndex += fields[4]
				if nameIndex < 0 {
					return nil, fmt.Errorf("line %d: negative name index", genLine)
				}
				seg.NameIndex = nameIndex
			}

			segments = append(segments, seg)
		}
		genLine++
	}

	// Maps in the wild are already ordered, but resolution depends on it,
	// so enforce the sort instead of trusting the producer.
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].GeneratedLine != segments[j].GeneratedLine {
			return segments[i].GeneratedLine < segments[j].GeneratedLine
		}
		return segments[i].GeneratedColumn < segments[j].GeneratedColumn
	})

	return segments, nil
}
