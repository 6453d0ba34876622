package powerstrip

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	// initialKey seeds the autokey stream for every message in both directions.
	initialKey byte = 171

	// lengthPrefixSize is the size of the big-endian length header used on TCP.
	lengthPrefixSize = 4
)

// Obfuscate applies the autokey XOR stream: each ciphertext byte becomes the
// key for the next one. The function is pure and deterministic.
func Obfuscate(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := initialKey
	for i, b := range plain {
		key ^= b
		out[i] = key
	}
	return out
}

// Deobfuscate reverses Obfuscate. The key stream is driven by the ciphertext,
// which is the same byte sequence in both directions.
func Deobfuscate(cipher []byte) []byte {
	out := make([]byte, len(cipher))
	key := initialKey
	for i, b := range cipher {
		out[i] = key ^ b
		key = b
	}
	return out
}

// EncodeCommand transcodes cmd to ISO-8859-1, replacing characters outside the
// table with the substitute byte 0x1A, and obfuscates it. With prefixLength the
// ciphertext is preceded by its length as a 4-byte big-endian integer.
func EncodeCommand(cmd string, prefixLength bool) ([]byte, error) {
	latin1, err := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()).Bytes([]byte(cmd))
	if err != nil {
		return nil, fmt.Errorf("%w: transcode command: %w", ErrEncoding, err)
	}

	body := Obfuscate(latin1)
	if !prefixLength {
		return body, nil
	}

	frame := make([]byte, lengthPrefixSize, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	return append(frame, body...), nil
}

// DecodeReply deobfuscates a reply body (without any length prefix) and
// returns it as text. Bytes that are not valid UTF-8 yield ErrEncoding.
func DecodeReply(data []byte) (string, error) {
	plain := Deobfuscate(data)
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: reply of %d bytes is not valid UTF-8", ErrEncoding, len(plain))
	}
	return string(plain), nil
}

// frameLength reads the 4-byte big-endian length header.
func frameLength(header []byte) (int, error) {
	if len(header) < lengthPrefixSize {
		return 0, fmt.Errorf("%w: short length header (%d bytes)", ErrProtocol, len(header))
	}
	return int(binary.BigEndian.Uint32(header[:lengthPrefixSize])), nil
}
