package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	json "github.com/goccy/go-json"
)

// Fingerprint is the 256-bit JobFingerprint: a stable hash
// over the input object's identity, the canonicalized pipeline spec, and
// the engine version.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// FingerprintFromHex parses the hex encoding String() produces. Cache
// backends round-trip a Fingerprint through Entry.Fingerprint as a string,
// since JSON has no native fixed-size byte array type.
func FingerprintFromHex(s string) Fingerprint {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp
	}
	copy(fp[:], b)
	return fp
}

// Canonicalize renders spec as the canonical JSON: keys sorted
// lexicographically at every depth, no whitespace. Numbers use Go's
// shortest round-tripping decimal form (goccy/go-json follows the same
// strconv.AppendFloat('g', -1) convention as the standard library).
func Canonicalize(spec Spec) ([]byte, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// ComputeFingerprint hashes the input object's identity (ETag or content
// hash), the canonicalized spec, and engineVersion into a Fingerprint.
func ComputeFingerprint(inputETag string, spec Spec, engineVersion string) (Fingerprint, error) {
	canon, err := Canonicalize(spec)
	if err != nil {
		return Fingerprint{}, err
	}
	h := sha256.New()
	h.Write([]byte(inputETag))
	h.Write([]byte{0})
	h.Write(canon)
	h.Write([]byte{0})
	h.Write([]byte(engineVersion))

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}
