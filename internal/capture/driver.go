package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// platformBrowserPath returns the bundled browser location for goos,
// relative to the project root.
func platformBrowserPath(root, goos string) (string, error) {
	switch goos {
	case "windows":
		return filepath.Join(root, "chromium", "chrome.exe"), nil
	case "linux":
		return filepath.Join(root, "chromium-linux", "chrome"), nil
	case "darwin":
		return filepath.Join(root, "chromium-macos", "Chromium.app", "Contents", "MacOS", "Chromium"), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// ResolveBrowserPath locates the browser executable: the configured override
// first, then the bundled per-platform path under root. When neither exists
// the preferred candidate is returned and launching it reports DriverNotFound.
func ResolveBrowserPath(override, root string) (string, error) {
	return resolveBrowserPath(override, root, runtime.GOOS)
}

func resolveBrowserPath(override, root, goos string) (string, error) {
	if override != "" && isExecutableFile(override) {
		return override, nil
	}
	bundled, err := platformBrowserPath(root, goos)
	if err == nil && isExecutableFile(bundled) {
		return bundled, nil
	}
	if override != "" {
		return override, nil
	}
	return bundled, err
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
