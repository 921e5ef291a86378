package genicam

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildStoredZip hand-assembles a minimal single-entry ZIP archive with the
// "stored" (uncompressed) method, matching the byte layout porturl.go scans
// directly rather than going through archive/zip.
func buildStoredZip(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	nameBytes := []byte(name)

	local := make([]byte, 30)
	binary.LittleEndian.PutUint32(local[0:4], 0x04034b50)
	binary.LittleEndian.PutUint16(local[8:10], 0) // stored
	binary.LittleEndian.PutUint32(local[18:22], uint32(len(data)))
	binary.LittleEndian.PutUint32(local[22:26], uint32(len(data)))
	binary.LittleEndian.PutUint16(local[26:28], uint16(len(nameBytes)))

	localOffset := 0
	var buf bytes.Buffer
	buf.Write(local)
	buf.Write(nameBytes)
	buf.Write(data)

	cd := make([]byte, 46)
	binary.LittleEndian.PutUint32(cd[0:4], 0x02014b50)
	binary.LittleEndian.PutUint16(cd[10:12], 0) // stored
	binary.LittleEndian.PutUint32(cd[20:24], uint32(len(data)))
	binary.LittleEndian.PutUint16(cd[28:30], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint32(cd[42:46], uint32(localOffset))

	cdOffset := buf.Len()
	buf.Write(cd)
	buf.Write(nameBytes)

	eocd := make([]byte, 22)
	binary.LittleEndian.PutUint32(eocd[0:4], 0x06054b50)
	binary.LittleEndian.PutUint16(eocd[10:12], 1)
	binary.LittleEndian.PutUint32(eocd[16:20], uint32(cdOffset))
	buf.Write(eocd)

	return buf.Bytes()
}

func TestExtractXMLMemberStored(t *testing.T) {
	payload := []byte("<RegisterDescription></RegisterDescription>")
	zipData := buildStoredZip(t, "device.xml", payload)
	got, err := ExtractXMLMember(zipData)
	if err != nil {
		t.Fatalf("ExtractXMLMember: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ExtractXMLMember = %q, want %q", got, payload)
	}
}

func TestExtractXMLMemberNoEOCD(t *testing.T) {
	if _, err := ExtractXMLMember([]byte("not a zip")); err == nil {
		t.Errorf("expected error for payload with no EOCD record")
	}
}
