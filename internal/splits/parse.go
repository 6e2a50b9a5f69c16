package splits

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// parseAddress validates and checksum-normalizes an EVM address.
func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, newErr(KindInvalidInput, field+" is not a valid EVM address")
	}
	return common.HexToAddress(s), nil
}

// parseSalt decodes a 0x-prefixed 32-byte hex string into a fixed array.
func parseSalt(s string) ([32]byte, error) {
	var salt [32]byte
	b, err := decodeHex(s)
	if err != nil {
		return salt, newErr(KindInvalidInput, "salt is not valid hex")
	}
	if len(b) != 32 {
		return salt, newErr(KindInvalidInput, "salt must be 32 bytes")
	}
	copy(salt[:], b)
	return salt, nil
}

// parseSignatureHex decodes a 0x-prefixed 65-byte ECDSA signature.
func parseSignatureHex(s string) ([]byte, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, newErr(KindInvalidInput, "signature is not valid hex")
	}
	if len(b) != 65 {
		return nil, newErr(KindInvalidInput, "signature must be 65 bytes")
	}
	return b, nil
}

// parseMetaHash decodes an optional 0x-prefixed 32-byte hex blob.
func parseMetaHash(s *string) (*string, [32]byte, error) {
	var out [32]byte
	if s == nil || *s == "" {
		return nil, out, nil
	}
	b, err := decodeHex(*s)
	if err != nil || len(b) != 32 {
		return nil, out, newErr(KindInvalidInput, "metaHash must be 0x + 64 hex chars")
	}
	copy(out[:], b)
	v := common.Bytes2Hex(b)
	v = "0x" + v
	return &v, out, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return hex.DecodeString(s)
}

// parseDeadline resolves a client-supplied deadline string into a time.Time
// (nil meaning no expiry) per spec §4.3:
//   - "0" means no expiry.
//   - A pure-digit string is interpreted as Unix seconds.
//   - Anything else is parsed as ISO-8601.
func parseDeadline(s string) (*time.Time, error) {
	if s == "0" {
		return nil, nil
	}
	if isDigits(s) {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, newErr(KindInvalidInput, "deadline is not a valid unix timestamp")
		}
		if secs == 0 {
			return nil, nil
		}
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, newErr(KindInvalidInput, "deadline is not valid ISO-8601")
	}
	return &t, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// unixOrZero returns the Unix-seconds value of t, or 0 when t is nil
// (the "no expiry" sentinel used on-chain and in typed-data messages).
func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
