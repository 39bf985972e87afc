// Package address computes content addresses for upload assets. The blob
// identifier and integrity root are pure functions of the asset bytes and
// the network shard count; the nonce is drawn fresh per computation and
// binds one specific registration attempt.
package address

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// NonceSize is the registration nonce length in bytes.
	NonceSize = 32

	leafTag = "suistream.blob.leaf.v1"
	rootTag = "suistream.blob.root.v1"
	idTag   = "suistream.blob.id.v1"
)

// Address identifies one asset on the storage network.
type Address struct {
	// BlobID is the network primary key for the bytes, url-safe base64.
	BlobID string
	// Root is the integrity digest the relay and nodes recompute.
	Root [32]byte
	// Nonce binds this specific registration; never equal across calls.
	Nonce [NonceSize]byte
	// AuthDigest authorizes the relay transmission; see AuthPayload.
	AuthDigest [32]byte
	// Size is the unencoded byte length.
	Size uint64
}

// ComputeError reports an address computation failure. Pure-function
// failures are fatal; the orchestrator never retries them.
type ComputeError struct {
	Reason string
}

func (e *ComputeError) Error() string {
	return "address: " + e.Reason
}

// Compute derives the address for data under the given network shard
// count. BlobID and Root are deterministic for identical inputs; the
// shard count must therefore be fixed for a whole session, or identical
// bytes would register under diverging identifiers.
func Compute(data []byte, shardCount int) (Address, error) {
	if len(data) == 0 {
		return Address{}, &ComputeError{Reason: "empty input"}
	}
	if shardCount <= 0 {
		return Address{}, &ComputeError{Reason: fmt.Sprintf("invalid shard count %d", shardCount)}
	}

	root := integrityRoot(data, shardCount)

	var idInput []byte
	idInput = append(idInput, idTag...)
	idInput = append(idInput, root[:]...)
	idInput = binary.LittleEndian.AppendUint64(idInput, uint64(len(data)))
	idInput = binary.LittleEndian.AppendUint16(idInput, uint16(shardCount))
	id := blake2b.Sum256(idInput)

	addr := Address{
		BlobID: base64.RawURLEncoding.EncodeToString(id[:]),
		Root:   root,
		Size:   uint64(len(data)),
	}
	if _, err := rand.Read(addr.Nonce[:]); err != nil {
		return Address{}, &ComputeError{Reason: "draw nonce: " + err.Error()}
	}

	digest := sha256.Sum256(AuthPayload(addr.Root, addr.Nonce, addr.Size))
	addr.AuthDigest = digest

	return addr, nil
}

// AuthPayload is the byte string the relay fee transaction carries so the
// relay can verify the transmitted bytes match what was paid for:
//
//	root || sha256(nonce) || little_endian_u64(size)
//
// The layout is order-sensitive and must match the relay byte-for-byte.
func AuthPayload(root [32]byte, nonce [NonceSize]byte, size uint64) []byte {
	nonceDigest := sha256.Sum256(nonce[:])

	payload := make([]byte, 0, 32+32+8)
	payload = append(payload, root[:]...)
	payload = append(payload, nonceDigest[:]...)
	payload = binary.LittleEndian.AppendUint64(payload, size)
	return payload
}

// NonceBase64 renders a nonce the way the relay expects it in query
// parameters.
func NonceBase64(nonce [NonceSize]byte) string {
	return base64.RawURLEncoding.EncodeToString(nonce[:])
}

// integrityRoot shards the data into shardCount near-equal pieces, hashes
// each, and digests the leaf list under a domain tag.
func integrityRoot(data []byte, shardCount int) [32]byte {
	if shardCount > len(data) {
		shardCount = len(data)
	}
	shardSize := (len(data) + shardCount - 1) / shardCount

	var rootInput []byte
	rootInput = append(rootInput, rootTag...)
	for off := 0; off < len(data); off += shardSize {
		end := off + shardSize
		if end > len(data) {
			end = len(data)
		}
		var leafInput []byte
		leafInput = append(leafInput, leafTag...)
		leafInput = append(leafInput, data[off:end]...)
		leaf := blake2b.Sum256(leafInput)
		rootInput = append(rootInput, leaf[:]...)
	}

	return blake2b.Sum256(rootInput)
}
