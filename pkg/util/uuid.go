package util

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// PixelNamespace scopes content fingerprints of decoded images
var PixelNamespace = uuid.MustParse("6c1f3a52-2f0e-4d8b-9a57-0b1e8e4f1a10")

// Md5ThenHex is a quick hasher
func Md5ThenHex(value []byte) string {
	hasher := md5.New()
	hasher.Write(value)
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashUUID fingerprints any json-serialisable value
func HashUUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	hasher := md5.New()
	hasher.Write(raw)
	hash := hasher.Sum(nil)
	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		return ""
	}
	return id.String()
}

// ContentUUID names decoded pixels: identical geometry and samples give
// the same id whatever container they were decoded from.
func ContentUUID(width, height, channels, depth int, pix []byte) uuid.UUID {
	buf := make([]byte, 16, 16+len(pix))
	binary.BigEndian.PutUint32(buf[0:], uint32(width))
	binary.BigEndian.PutUint32(buf[4:], uint32(height))
	binary.BigEndian.PutUint32(buf[8:], uint32(channels))
	binary.BigEndian.PutUint32(buf[12:], uint32(depth))
	return uuid.NewMD5(PixelNamespace, append(buf, pix...))
}
