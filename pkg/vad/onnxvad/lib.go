//go:build onnxvad

package onnxvad

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// resolveLibPath finds the ONNX Runtime shared library when the caller
// didn't pass an explicit path: first VOCALIS_ORT_LIB_PATH, then
// lib/<goos>-<goarch>/<name> relative to the running executable. There is no
// current-working-directory fallback — this process runs as a daemon, not a
// developer's shell, so there is no "dev mode" CWD convenience to offer.
func resolveLibPath() (string, error) {
	if envPath := os.Getenv("VOCALIS_ORT_LIB_PATH"); envPath != "" {
		info, err := os.Stat(envPath)
		if err != nil {
			return "", fmt.Errorf("ort: VOCALIS_ORT_LIB_PATH=%q does not exist", envPath)
		}
		if info.IsDir() {
			return "", fmt.Errorf("ort: VOCALIS_ORT_LIB_PATH=%q is a directory, expected a file", envPath)
		}
		return envPath, nil
	}

	filename := libFilename()
	rel := filepath.Join("lib", runtime.GOOS+"-"+runtime.GOARCH, filename)

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("ort: shared library not found: %w", err)
	}
	path := filepath.Join(filepath.Dir(exePath), rel)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("ort: shared library not found at %s (set VOCALIS_ORT_LIB_PATH to override)", path)
	}
	return path, nil
}

func libFilename() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
