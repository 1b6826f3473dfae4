package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const evmAddressLen = 20

// ParseAccountID decodes a hex account id with optional 0x prefix. A 20-byte
// EVM address written in mixed case must carry a valid EIP-55 checksum.
func ParseAccountID(id string) ([]byte, error) {
	s := strings.TrimSpace(id)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAccountID)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountID, err)
	}
	if len(raw) == evmAddressLen && isMixedCase(s) && checksumAddress(raw) != s {
		return nil, fmt.Errorf("%w: bad checksum", ErrInvalidAccountID)
	}
	return raw, nil
}

// PublicKeyHex renders raw account id bytes the way sessions are keyed.
func PublicKeyHex(raw []byte) string {
	return hex.EncodeToString(raw)
}

// checksumAddress returns the EIP-55 form of addr without the 0x prefix.
func checksumAddress(addr []byte) string {
	lower := hex.EncodeToString(addr)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
