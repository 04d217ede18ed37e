package bkclient

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/minio/highwayhash"
)

// correlationKey is a fixed 32 bytes (as HighwayHash requires), grounded
// on the teacher's go/flow/mapping.go PackedKeyHash_HH64, which reads its
// key once from /dev/random and hex-encodes it into the source.
var correlationKey, _ = hex.DecodeString("6dfe5a1c59e8013bf793a6bed6e3c600b7b19aa9d9805783a83e88748f3577a4")

// correlationTag folds a ledger id into a short, stable hex tag attached
// to log fields (§4.3+), so an operator can grep one ledger's lifecycle
// across duplicate-txn-id, write-failure, and response-routing log lines without scanning
// raw int64s.
func correlationTag(ledgerID int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ledgerID))
	var sum = highwayhash.Sum64(buf[:], correlationKey)
	return hex.EncodeToString([]byte{byte(sum >> 56), byte(sum >> 48), byte(sum >> 40), byte(sum >> 32)})
}
