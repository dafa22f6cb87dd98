package types

import (
	"crypto/rand"
	"sync"
	"time"
)

// ULID is a 128-bit identifier: a 48-bit millisecond timestamp followed by
// 80 random bits. Its string form sorts lexicographically by creation time.
type ULID [16]byte

// Crockford's Base32 alphabet (excludes I, L, O, U)
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const ulidStringLen = 26

// IDSource produces identifiers for new events and reports.
type IDSource interface {
	NewID(t time.Time) (string, error)
}

// ULIDGenerator generates ULIDs that are strictly increasing within a
// millisecond. It is safe for concurrent use.
type ULIDGenerator struct {
	mu            sync.Mutex
	lastTimestamp uint64
	lastRandom    [10]byte
}

// NewULIDGenerator creates a new ULID generator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// NewID implements IDSource.
func (g *ULIDGenerator) NewID(t time.Time) (string, error) {
	u, err := g.GenerateWithTime(t)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Generate creates a new ULID for the current time.
func (g *ULIDGenerator) Generate() (ULID, error) {
	return g.GenerateWithTime(time.Now())
}

// GenerateWithTime creates a new ULID stamped with t.
func (g *ULIDGenerator) GenerateWithTime(t time.Time) (ULID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := uint64(t.UnixMilli())

	var ulid ULID
	for i := 0; i < 6; i++ {
		ulid[i] = byte(timestamp >> (40 - 8*i))
	}

	if timestamp == g.lastTimestamp {
		// same millisecond: bump the random part so ordering stays monotonic
		for i := 9; i >= 0; i-- {
			g.lastRandom[i]++
			if g.lastRandom[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.lastRandom[:]); err != nil {
			return ULID{}, err
		}
		g.lastTimestamp = timestamp
	}
	copy(ulid[6:], g.lastRandom[:])

	return ulid, nil
}

// Timestamp returns the embedded Unix millisecond timestamp.
func (u ULID) Timestamp() int64 {
	var ts uint64
	for i := 0; i < 6; i++ {
		ts = ts<<8 | uint64(u[i])
	}
	return int64(ts)
}

// String returns the 26-character Crockford Base32 form.
func (u ULID) String() string {
	// 128 bits are encoded as 130 bits with two leading zero bits.
	var buf [ulidStringLen]byte
	var acc uint32
	var bits uint
	out := 0

	// first character carries the top 3 bits of byte 0
	buf[out] = crockfordBase32[u[0]>>5]
	out++
	acc = uint32(u[0] & 0x1f)
	bits = 5
	for i := 1; i < len(u); i++ {
		acc = acc<<8 | uint32(u[i])
		bits += 8
		for bits >= 5 {
			bits -= 5
			buf[out] = crockfordBase32[(acc>>bits)&0x1f]
			out++
		}
	}
	return string(buf[:])
}

// Compare compares two ULIDs byte-wise.
func (u ULID) Compare(other ULID) int {
	for i := range u {
		switch {
		case u[i] < other[i]:
			return -1
		case u[i] > other[i]:
			return 1
		}
	}
	return 0
}

// ParseULID parses the 26-character string form.
func ParseULID(s string) (ULID, error) {
	if len(s) != ulidStringLen {
		return ULID{}, ErrInvalidULIDLength
	}

	var ulid ULID
	first := decodeBase32(s[0])
	if first == 0xFF || first > 7 {
		return ULID{}, ErrInvalidULIDCharacter
	}

	acc := uint32(first)
	bits := uint(3)
	out := 0
	for i := 1; i < len(s); i++ {
		v := decodeBase32(s[i])
		if v == 0xFF {
			return ULID{}, ErrInvalidULIDCharacter
		}
		acc = acc<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			ulid[out] = byte(acc >> bits)
			out++
			acc &= (1 << bits) - 1
		}
	}
	return ulid, nil
}

// decodeBase32 decodes a single Crockford Base32 character, case-insensitively.
// Returns 0xFF for invalid characters.
func decodeBase32(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'H':
		return c - 'A' + 10
	case c >= 'J' && c <= 'K':
		return c - 'J' + 18
	case c >= 'M' && c <= 'N':
		return c - 'M' + 20
	case c >= 'P' && c <= 'T':
		return c - 'P' + 22
	case c >= 'V' && c <= 'Z':
		return c - 'V' + 27
	default:
		return 0xFF
	}
}
