package sds011

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHex decodes a frame written as hex, tolerating whitespace, colons and
// 0x prefixes, so "AA C0 4B 00", "aa:c0:4b:00" and "0xAA 0xC0" are all
// accepted. It does not validate the frame.
func ParseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.ReplaceAll(s, "0X", "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', ',', '-':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return b, nil
}
