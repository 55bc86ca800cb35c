package cmd

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "pledo-cmd-test-*")
	if err == nil {
		_ = os.Setenv("PLEDO_CONFIG_DIR", tmpDir)
		_ = os.Unsetenv("PLEDO_HOST")
	}

	code := m.Run()

	if err == nil {
		_ = os.RemoveAll(tmpDir)
	}
	os.Exit(code)
}
