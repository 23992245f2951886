// Package checksum computes the two hashes the inspector compares across
// stores: a content checksum over a fixed subset of canonical fields, and a
// compact fingerprint for embedding vectors.
package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ContentFields is the documented subset of canonical fields the content
// checksum covers. Fields outside this set never influence the checksum.
var ContentFields = []string{"title", "content", "language", "version"}

// Content hashes the checksum subset of vals with sorted keys. Two stores
// holding identical subset values produce identical checksums; a nil value
// hashes differently from an empty string so "absent" and "empty" stay
// distinguishable.
func Content(vals map[string]*string) string {
	keys := make([]string, 0, len(ContentFields))
	for _, k := range ContentFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		if v, ok := vals[k]; ok && v != nil {
			h.Write([]byte(*v))
		} else {
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Method selects how embedding vectors are fingerprinted. The method is an
// operational policy pinned per deployment: changing it invalidates every
// previously recorded fingerprint.
type Method string

const (
	// MethodRoundedPrefix rounds the first Prefix dimensions to Precision
	// decimals and hashes their ASCII rendering. Robust against float noise
	// below the precision threshold.
	MethodRoundedPrefix Method = "rounded-prefix"

	// MethodRawBytes hashes the little-endian float32 bytes of the whole
	// vector. Fastest, but any bit-level difference reads as drift.
	MethodRawBytes Method = "raw-bytes"
)

// Fingerprinter computes embedding fingerprints with a pinned method.
type Fingerprinter struct {
	Method    Method
	Prefix    int // dimensions hashed by rounded-prefix; 0 means 32
	Precision int // decimals kept by rounded-prefix; 0 means 6
}

// Vector returns the xxhash64 fingerprint of vec as fixed-width hex.
func (f Fingerprinter) Vector(vec []float32) string {
	h := xxhash.New()
	switch f.Method {
	case MethodRawBytes:
		buf := make([]byte, 4)
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			h.Write(buf)
		}
	default: // rounded-prefix
		prefix := f.Prefix
		if prefix <= 0 {
			prefix = 32
		}
		if prefix > len(vec) {
			prefix = len(vec)
		}
		precision := f.Precision
		if precision <= 0 {
			precision = 6
		}
		for _, v := range vec[:prefix] {
			h.Write([]byte(strconv.FormatFloat(float64(v), 'f', precision, 32)))
			h.Write([]byte{','})
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Validate reports whether the configured method is known.
func (f Fingerprinter) Validate() error {
	switch f.Method {
	case "", MethodRoundedPrefix, MethodRawBytes:
		return nil
	}
	return fmt.Errorf("unknown fingerprint method %q", f.Method)
}
