// Package encoding packs per-slot entries (fingerprint followed by payload)
// into little-endian byte regions.
//
// An entry of fpSize+payloadSize bytes is stored as the fingerprint's low
// fpSize bytes followed by the payload's low payloadSize bytes. Slot i of a
// region starts at i*entrySize.
package encoding

import "encoding/binary"

// PutFP writes the low fpSize bytes of fp to dst.
// Precondition: len(dst) >= fpSize.
func PutFP(dst []byte, fp uint32, fpSize int) {
	switch fpSize {
	case 0:
	case 1:
		dst[0] = byte(fp)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(fp))
	case 4:
		binary.LittleEndian.PutUint32(dst, fp)
	default:
		for i := range fpSize {
			dst[i] = byte(fp >> (i * 8))
		}
	}
}

// PutPayload writes the low payloadSize bytes of payload to dst.
// Precondition: len(dst) >= payloadSize.
func PutPayload(dst []byte, payload uint64, payloadSize int) {
	switch payloadSize {
	case 0:
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(payload))
	case 8:
		binary.LittleEndian.PutUint64(dst, payload)
	default:
		for i := range payloadSize {
			dst[i] = byte(payload >> (i * 8))
		}
	}
}

// PutEntry writes the entry for slot into region.
func PutEntry(region []byte, slot, fpSize, payloadSize int, fp uint32, payload uint64) {
	entrySize := fpSize + payloadSize
	dst := region[slot*entrySize : (slot+1)*entrySize]
	PutFP(dst, fp, fpSize)
	PutPayload(dst[fpSize:], payload, payloadSize)
}

// ReadFP reads a little-endian fingerprint of fpSize bytes from buf.
func ReadFP(buf []byte, fpSize int) uint32 {
	switch fpSize {
	case 0:
		return 0
	case 1:
		return uint32(buf[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf))
	case 4:
		return binary.LittleEndian.Uint32(buf)
	}
	var v uint32
	for i := range fpSize {
		v |= uint32(buf[i]) << (i * 8)
	}
	return v
}

// ReadPayload reads a little-endian payload of payloadSize bytes from buf.
func ReadPayload(buf []byte, payloadSize int) uint64 {
	switch payloadSize {
	case 0:
		return 0
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	var v uint64
	for i := range payloadSize {
		v |= uint64(buf[i]) << (i * 8)
	}
	return v
}

// ReadEntry reads the fingerprint and payload stored for slot in region.
func ReadEntry(region []byte, slot, fpSize, payloadSize int) (uint32, uint64) {
	offset := slot * (fpSize + payloadSize)
	fp := ReadFP(region[offset:], fpSize)
	payload := ReadPayload(region[offset+fpSize:], payloadSize)
	return fp, payload
}
