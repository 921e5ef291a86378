package genicam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// End-of-central-directory and central-directory-header signatures, per the
// ZIP format (§6: "parsed as a ZIP archive; central directory is scanned to
// locate a single XML member").
const (
	sigEOCD = 0x06054b50
	sigCDH  = 0x02014b50
)

// ExtractXMLMember scans payload's central directory to locate the single
// XML entry and inflates it with raw DEFLATE, returning the XML bytes.
//
// archive/zip is not used here: it requires an io.ReaderAt over a complete
// archive and does not expose direct central-directory scanning over an
// in-memory byte range the way a port-URL payload demands (§4.3 step 1).
func ExtractXMLMember(payload []byte) ([]byte, error) {
	eocdOff := findEOCD(payload)
	if eocdOff < 0 {
		return nil, fmt.Errorf("genicam: no end-of-central-directory record found")
	}
	cdOffset := binary.LittleEndian.Uint32(payload[eocdOff+16 : eocdOff+20])
	cdCount := binary.LittleEndian.Uint16(payload[eocdOff+10 : eocdOff+12])

	pos := int(cdOffset)
	var found *zipEntry
	for i := 0; i < int(cdCount); i++ {
		if pos+46 > len(payload) {
			return nil, fmt.Errorf("genicam: truncated central directory entry %d", i)
		}
		if sig := binary.LittleEndian.Uint32(payload[pos : pos+4]); sig != sigCDH {
			return nil, fmt.Errorf("genicam: bad central directory signature at entry %d", i)
		}
		compMethod := binary.LittleEndian.Uint16(payload[pos+10 : pos+12])
		compSize := binary.LittleEndian.Uint32(payload[pos+20 : pos+24])
		nameLen := binary.LittleEndian.Uint16(payload[pos+28 : pos+30])
		extraLen := binary.LittleEndian.Uint16(payload[pos+30 : pos+32])
		commentLen := binary.LittleEndian.Uint16(payload[pos+32 : pos+34])
		localOffset := binary.LittleEndian.Uint32(payload[pos+42 : pos+46])
		name := string(payload[pos+46 : pos+46+int(nameLen)])

		entry := &zipEntry{
			name:        name,
			compMethod:  compMethod,
			compSize:    int(compSize),
			localOffset: int(localOffset),
		}
		if found == nil {
			found = entry
		} else if len(name) > 0 {
			// Spec requires a single XML member; if more than one entry is
			// present, prefer one with an .xml-looking name.
			if hasXMLSuffix(name) && !hasXMLSuffix(found.name) {
				found = entry
			}
		}
		pos += 46 + int(nameLen) + int(extraLen) + int(commentLen)
	}
	if found == nil {
		return nil, fmt.Errorf("genicam: zip archive has no entries")
	}

	data, err := localFileData(payload, found)
	if err != nil {
		return nil, err
	}
	if found.compMethod == 0 {
		return data, nil
	}
	return inflateRaw(data)
}

type zipEntry struct {
	name        string
	compMethod  uint16
	compSize    int
	localOffset int
}

func hasXMLSuffix(name string) bool {
	return len(name) >= 4 && (name[len(name)-4:] == ".xml" || name[len(name)-4:] == ".XML")
}

func findEOCD(b []byte) int {
	// Scan backward for the EOCD signature; the comment field (≤65535
	// bytes) means it isn't necessarily the last 22 bytes.
	limit := len(b) - 22
	if limit < 0 {
		return -1
	}
	for i := limit; i >= 0; i-- {
		if binary.LittleEndian.Uint32(b[i:i+4]) == sigEOCD {
			return i
		}
	}
	return -1
}

func localFileData(payload []byte, e *zipEntry) ([]byte, error) {
	if e.localOffset+30 > len(payload) {
		return nil, fmt.Errorf("genicam: truncated local file header")
	}
	nameLen := binary.LittleEndian.Uint16(payload[e.localOffset+26 : e.localOffset+28])
	extraLen := binary.LittleEndian.Uint16(payload[e.localOffset+28 : e.localOffset+30])
	dataStart := e.localOffset + 30 + int(nameLen) + int(extraLen)
	dataEnd := dataStart + e.compSize
	if dataEnd > len(payload) {
		return nil, fmt.Errorf("genicam: truncated local file data")
	}
	return payload[dataStart:dataEnd], nil
}

// inflateRaw decompresses raw DEFLATE data (no zlib/gzip wrapper) using
// klauspost/compress/flate, carried in from the rest of the retrieval pack
// (helixml-helix, nmxmxh-inos_v1 both require github.com/klauspost/compress)
// as the idiomatic replacement for compress/flate.
func inflateRaw(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	return io.ReadAll(r)
}
