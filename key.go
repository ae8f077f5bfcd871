package chdhash

import (
	"github.com/zeebo/xxh3"

	chderrors "github.com/tamirms/chdhash/errors"
)

// fingerprint returns the low fpSize bytes of the key's xxh3 hash.
//
// xxh3 is independent of the FNV family that places keys, so a foreign key
// landing on a slot matches the stored fingerprint with probability
// 2^-(8*fpSize). Keys are hashed as raw bytes; keys whose code point views
// coincide are already rejected as duplicates at build time.
func fingerprint(key string, fpSize int) uint32 {
	if fpSize == 0 {
		return 0
	}
	h := xxh3.HashString(key)
	mask := uint32((uint64(1) << (fpSize * 8)) - 1)
	return uint32(h>>32) & mask
}

// checkPayload reports ErrPayloadOverflow when payload does not fit in
// payloadSize bytes.
func checkPayload(payload uint64, payloadSize int) error {
	if payloadSize > 0 && payloadSize < 8 {
		if payload > uint64(1)<<(payloadSize*8)-1 {
			return chderrors.ErrPayloadOverflow
		}
	}
	return nil
}
