package imaging

import (
	"bytes"
	"encoding/binary"
)

// Provenance is what an encoded file says about its own origin.
type Provenance struct {
	Format     string `json:"format,omitempty"`
	HasEXIF    bool   `json:"has_exif"`
	CameraMake string `json:"camera_make,omitempty"`
	Software   string `json:"software,omitempty"`
	Generator  string `json:"generator,omitempty"`
}

var cameraMakes = []string{"Apple", "Canon", "NIKON", "Nikon", "SONY", "Sony", "FUJIFILM", "samsung", "Samsung", "Google", "OLYMPUS", "Panasonic", "LEICA", "HUAWEI", "Xiaomi"}

var editors = []string{"Adobe Photoshop", "Photoshop", "Lightroom", "GIMP", "Snapseed"}

// generatorMarkers are strings generators write into EXIF or PNG text
// chunks. "parameters" is the key Stable Diffusion web UIs use for the
// prompt block.
var generatorMarkers = []struct{ needle, name string }{
	{"Midjourney", "Midjourney"},
	{"DALL-E", "DALL-E"},
	{"DALL·E", "DALL-E"},
	{"Stable Diffusion", "Stable Diffusion"},
	{"ComfyUI", "ComfyUI"},
	{"NovelAI", "NovelAI"},
	{"Adobe Firefly", "Adobe Firefly"},
	{"trainedAlgorithmicMedia", "C2PA AI assertion"},
	{"parameters\x00", "Stable Diffusion"},
	{"prompt\x00", "ComfyUI"},
}

// ScanProvenance inspects EXIF (JPEG APP1) and PNG text chunks. It never
// fails; unknown formats yield an empty Provenance.
func ScanProvenance(data []byte) Provenance {
	p := Provenance{Format: SniffFormat(data)}
	switch p.Format {
	case "jpeg":
		scanJPEG(data, &p)
	case "png":
		scanPNG(data, &p)
	}
	return p
}

// scanJPEG walks marker segments up to the start of scan.
func scanJPEG(data []byte, p *Provenance) {
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			return
		}
		marker := data[i+1]
		if marker == 0xDA || marker == 0xD9 {
			return
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 || i+2+segLen > len(data) {
			return
		}
		seg := data[i+4 : i+2+segLen]
		switch {
		case marker == 0xE1 && bytes.HasPrefix(seg, []byte("Exif\x00")):
			p.HasEXIF = true
			inspectText(seg, p)
		case marker == 0xE1 || marker == 0xEB || marker == 0xFE:
			// XMP, JUMBF (C2PA) and comments
			inspectText(seg, p)
		}
		i += 2 + segLen
	}
}

// scanPNG walks chunks: length, type, data, CRC.
func scanPNG(data []byte, p *Provenance) {
	for i := 8; i+8 <= len(data); {
		chunkLen := int(binary.BigEndian.Uint32(data[i : i+4]))
		chunkType := string(data[i+4 : i+8])
		end := i + 8 + chunkLen
		if chunkLen < 0 || end > len(data) {
			return
		}
		switch chunkType {
		case "eXIf":
			p.HasEXIF = true
			inspectText(data[i+8:end], p)
		case "tEXt", "iTXt", "zTXt", "caBX":
			inspectText(data[i+8:end], p)
		case "IEND":
			return
		}
		i = end + 4
	}
}

func inspectText(seg []byte, p *Provenance) {
	if p.Generator == "" {
		for _, m := range generatorMarkers {
			if bytes.Contains(seg, []byte(m.needle)) {
				p.Generator = m.name
				break
			}
		}
	}
	if p.CameraMake == "" {
		for _, m := range cameraMakes {
			if bytes.Contains(seg, []byte(m)) {
				p.CameraMake = m
				break
			}
		}
	}
	if p.Software == "" {
		for _, e := range editors {
			if bytes.Contains(seg, []byte(e)) {
				p.Software = e
				break
			}
		}
	}
}
