package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngWithText encodes a small PNG and inserts a tEXt chunk after IHDR.
func pngWithText(t *testing.T, keyword, text string) []byte {
	t.Helper()
	var enc bytes.Buffer
	require.NoError(t, png.Encode(&enc, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	raw := enc.Bytes()

	payload := append([]byte(keyword+"\x00"), text...)
	chunk := make([]byte, 8, 12+len(payload))
	binary.BigEndian.PutUint32(chunk, uint32(len(payload)))
	copy(chunk[4:], "tEXt")
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	const afterIHDR = 8 + 25
	out := append([]byte{}, raw[:afterIHDR]...)
	out = append(out, chunk...)
	return append(out, raw[afterIHDR:]...)
}

// jpegWithSegment builds SOI, one marker segment, then SOS.
func jpegWithSegment(marker byte, body string) []byte {
	out := []byte{0xFF, 0xD8, 0xFF, marker}
	out = binary.BigEndian.AppendUint16(out, uint16(len(body)+2))
	out = append(out, body...)
	return append(out, 0xFF, 0xDA, 0x00, 0x02)
}

func TestScanProvenance(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Provenance
	}{
		{
			name: "stable diffusion parameters chunk",
			data: pngWithText(t, "parameters", "a cat in a hat, Steps: 20"),
			want: Provenance{Format: "png", Generator: "Stable Diffusion"},
		},
		{
			name: "plain png comment",
			data: pngWithText(t, "Comment", "holiday"),
			want: Provenance{Format: "png"},
		},
		{
			name: "camera exif",
			data: jpegWithSegment(0xE1, "Exif\x00\x00MM Canon EOS R5 Adobe Photoshop"),
			want: Provenance{Format: "jpeg", HasEXIF: true, CameraMake: "Canon", Software: "Adobe Photoshop"},
		},
		{
			name: "c2pa assertion in jumbf",
			data: jpegWithSegment(0xEB, "JP c2pa digitalSourceType trainedAlgorithmicMedia"),
			want: Provenance{Format: "jpeg", Generator: "C2PA AI assertion"},
		},
		{
			name: "truncated segment",
			data: []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x10, 0x00, 'E'},
			want: Provenance{Format: "jpeg"},
		},
		{
			name: "unknown format",
			data: []byte("not an image"),
			want: Provenance{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScanProvenance(tt.data))
		})
	}
}
