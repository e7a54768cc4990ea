package main

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// licenseModulus is the public-exponent-0x13 RSA modulus used to decrypt
// the '$ original user' node, transcribed byte-for-byte from the reference
// tool. Both it and the ciphertext are imported as little-endian integers
// (least-significant byte first) -- reversing the literal byte order below
// before handing it to math/big, which expects big-endian input.
var licenseModulus = []byte{
	0xED, 0xFD, 0x42, 0x5C, 0xF9, 0x78, 0x54, 0x6E, 0x89, 0x11, 0x22, 0x58, 0x84, 0x43, 0x6C, 0x57,
	0x14, 0x05, 0x25, 0x65, 0x0B, 0xCF, 0x6E, 0xBF, 0xE8, 0x0E, 0xDB, 0xC5, 0xFB, 0x1D, 0xE6, 0x8F,
	0x4C, 0x66, 0xC2, 0x9C, 0xB2, 0x2E, 0xB6, 0x68, 0x78, 0x8A, 0xFC, 0xB0, 0xAB, 0xBB, 0x71, 0x80,
	0x44, 0x58, 0x4B, 0x81, 0x0F, 0x89, 0x70, 0xCD, 0xDF, 0x22, 0x73, 0x85, 0xF7, 0x5D, 0x5D, 0xDD,
	0xD9, 0x1D, 0x4F, 0x18, 0x93, 0x7A, 0x08, 0xAA, 0x83, 0xB2, 0x8C, 0x49, 0xD1, 0x2D, 0xC9, 0x2E,
	0x75, 0x05, 0xBB, 0x38, 0x80, 0x9E, 0x91, 0xBD, 0x0F, 0xBD, 0x2F, 0x2E, 0x6A, 0xB1, 0xD2, 0xE3,
	0x3C, 0x0C, 0x55, 0xD5, 0xBD, 0xDD, 0x47, 0x8E, 0xE8, 0xBF, 0x84, 0x5F, 0xCE, 0xF3, 0xC8, 0x2B,
	0x9D, 0x29, 0x29, 0xEC, 0xB7, 0x1F, 0x4D, 0x1B, 0x3D, 0xB9, 0x6E, 0x3A, 0x8E, 0x7A, 0xAF, 0x93,
}

const licenseExponent = 0x13

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// decryptUser reverses the modular exponentiation IDA applies when storing
// the '$ original user' node, recovering the same plaintext layout
// dumplicense expects for '$ user1'.
func decryptUser(encvector []byte) []byte {
	mod := new(big.Int).SetBytes(reversed(licenseModulus))
	val := new(big.Int).SetBytes(reversed(encvector))
	exp := big.NewInt(licenseExponent)

	res := new(big.Int).Exp(val, exp, mod)

	out := make([]byte, len(licenseModulus)-1)
	resBytes := res.Bytes()
	copy(out[len(out)-len(resBytes):], resBytes)
	return out
}

// cstring returns the text up to the first NUL byte (or all of b, if none).
func cstring(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// timestring formats a unix timestamp the way the reference tool's license
// dump does, or sixteen spaces for a zero (absent) timestamp.
func timestring(t uint32) string {
	if t == 0 {
		return strings.Repeat(" ", 16)
	}
	tm := time.Unix(int64(t), 0).Local()
	return tm.Format("2006-01-02 15:04")
}

// formatLicense renders a decrypted 127-byte license block the way the
// reference tool's dumplicense does: an old-style (pre-v5.3) layout with a
// bare licensee string, or a newer layout carrying a version, two
// timestamps, and a dash-grouped serial. Blocks of the wrong size, or whose
// trailer word at [106:110] is nonzero, are considered unset and produce no
// output -- mirroring the reference tool silently skipping an empty slot.
func formatLicense(tag string, user []byte) string {
	if len(user) != 127 {
		return ""
	}
	if binary.LittleEndian.Uint32(user[106:110]) != 0 {
		return ""
	}

	licver := binary.LittleEndian.Uint16(user[0:2])
	if licver == 0 {
		licensee := cstring(user[20:])
		return fmt.Sprintf("%s%s   %s\n", tag, timestring(binary.LittleEndian.Uint32(user[4:8])), licensee)
	}

	licensee := cstring(user[34:])
	return fmt.Sprintf("%sv%04d %s ... %s   %02x-%02x%02x-%02x%02x-%02x  %s\n",
		tag, licver,
		timestring(binary.LittleEndian.Uint32(user[16:20])),
		timestring(binary.LittleEndian.Uint32(user[24:28])),
		user[28], user[29], user[30], user[31], user[32], user[33],
		licensee)
}
