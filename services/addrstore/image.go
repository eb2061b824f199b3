package addrstore

import (
	"encoding/binary"
	"hash/crc32"

	"temppair-go/drivers/esp3"
)

// Region image layout, little-endian:
//
//	magic u32 | generation u32 | capacity u16 | reserved u16 |
//	capacity × (id u32, pairedAt u32) | crc32 (IEEE) of everything before
const (
	imageMagic = 0x53415054 // "TPAS"
	headerSize = 12
	slotSize   = 8
	crcSize    = 4
)

// ImageSize is the number of bytes a region needs for capacity slots.
func ImageSize(capacity int) int { return headerSize + capacity*slotSize + crcSize }

// CapacityFor is the largest capacity whose image fits in regionSize.
func CapacityFor(regionSize int) int {
	n := (regionSize - headerSize - crcSize) / slotSize
	if n < 0 {
		return 0
	}
	if n > 0xFFFF {
		n = 0xFFFF
	}
	return n
}

type slot struct {
	id       esp3.SensorID
	pairedAt uint32
}

// encodeImage fills img (len ImageSize(len(slots))) and returns it.
func encodeImage(img []byte, gen uint32, slots []slot) []byte {
	le := binary.LittleEndian
	le.PutUint32(img[0:], imageMagic)
	le.PutUint32(img[4:], gen)
	le.PutUint16(img[8:], uint16(len(slots)))
	le.PutUint16(img[10:], 0)
	off := headerSize
	for _, s := range slots {
		le.PutUint32(img[off:], uint32(s.id))
		le.PutUint32(img[off+4:], s.pairedAt)
		off += slotSize
	}
	le.PutUint32(img[off:], crc32.ChecksumIEEE(img[:off]))
	return img[:off+crcSize]
}

// decodeImage validates img and fills slots. It reports false for any
// image that is torn, foreign, sized for another capacity, or holds an
// impossible table.
func decodeImage(img []byte, slots []slot) (gen uint32, ok bool) {
	le := binary.LittleEndian
	n := len(slots)
	if len(img) < ImageSize(n) {
		return 0, false
	}
	body := headerSize + n*slotSize
	if le.Uint32(img[0:]) != imageMagic || int(le.Uint16(img[8:])) != n {
		return 0, false
	}
	if crc32.ChecksumIEEE(img[:body]) != le.Uint32(img[body:]) {
		return 0, false
	}
	off := headerSize
	for i := range slots {
		id := esp3.SensorID(le.Uint32(img[off:]))
		if id != 0 && !id.Valid() {
			return 0, false
		}
		for j := 0; j < i; j++ {
			if id != 0 && slots[j].id == id {
				return 0, false
			}
		}
		slots[i] = slot{id: id, pairedAt: le.Uint32(img[off+4:])}
		off += slotSize
	}
	return le.Uint32(img[4:]), true
}

func isBlank(p []byte) bool {
	for _, b := range p {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// newer reports whether generation a was written after b, using serial
// number arithmetic so the counter may wrap.
func newer(a, b uint32) bool { return int32(a-b) > 0 }
