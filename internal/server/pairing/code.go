package pairing

import "crypto/rand"

// codeAlphabet is the 33-symbol set used for human-enterable pairing codes.
// 0, 1 and O are excluded because devices render them ambiguously.
const codeAlphabet = "23456789ABCDEFGHIJKLMNPQRSTUVWXYZ"

// CodeLength is the fixed length of a pairing code.
const CodeLength = 7

// newPairingCode draws a uniform random code over codeAlphabet. Bytes that
// would bias the modulo reduction are rejected and redrawn.
func newPairingCode() (string, error) {
	const limit = byte(len(codeAlphabet) * (256 / len(codeAlphabet))) // 231

	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}
