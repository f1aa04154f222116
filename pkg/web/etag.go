package web

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"

	"github.com/dchest/siphash"
)

// siphash seeds, generated at start-up
var seed0, seed1 uint64

func init() {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	seed0 = binary.LittleEndian.Uint64(buf[:8])
	seed1 = binary.LittleEndian.Uint64(buf[8:])
}

// ETag represents the file id without leaking it. It is quoted as RFC 7232 expects.
func ETag(fileID string) string {
	return `"` + strconv.FormatUint(siphash.Hash(seed0, seed1, []byte(fileID)), 36) + `"`
}
