package testutil

import (
	"fmt"
	"os"
)

// Payload returns n bytes of a repeating, non-zero pattern.
func Payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i%251 + 1)
	}
	return b
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// VerifyFileSize checks that path holds exactly size bytes.
func VerifyFileSize(path string, size int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != size {
		return fmt.Errorf("%s: expected %d bytes, got %d", path, size, info.Size())
	}
	return nil
}
