package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// idHashLen is the number of hex characters of the path hash kept in a file name.
const idHashLen = 12

// PathFor returns the checkpoint file inside dir for the given log source.
func PathFor(dir, source string) string {
	return filepath.Join(dir, SourceID(source)+".ckpt")
}

// SourceID names a log source in file names. It combines the base name with
// a hash of the absolute path so two sources with the same base name differ.
func SourceID(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}

	sum := sha256.Sum256([]byte(abs))
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, filepath.Base(abs))

	return base + "-" + hex.EncodeToString(sum[:])[:idHashLen]
}
