package config

import (
	"fmt"
	"strconv"
)

// Environment variables that override the config file.
const (
	EnvAuthDir          = "AUTH_DIR"
	EnvLang             = "SETUP_AUTH_LANG"
	EnvTargetURL        = "CAPTURE_TARGET_URL"
	EnvBrowserPath      = "BROWSER_EXECUTABLE_PATH"
	EnvHost             = "HOST"
	EnvPort             = "PORT"
	EnvInitialAuthIndex = "INITIAL_AUTH_INDEX"
	EnvNATSURL          = "AUTHCAP_NATS_URL"
	EnvNATSToken        = "AUTHCAP_NATS_TOKEN"
	EnvLogFile          = "AUTHCAP_LOG_FILE"
)

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvAuthDir:     &cfg.Store.Dir,
		EnvLang:        &cfg.Capture.Lang,
		EnvTargetURL:   &cfg.Capture.TargetURL,
		EnvBrowserPath: &cfg.Capture.BrowserPath,
		EnvHost:        &cfg.Server.Host,
		EnvNATSURL:     &cfg.Bus.NATSURL,
		EnvNATSToken:   &cfg.Bus.Token,
		EnvLogFile:     &cfg.Log.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		EnvPort:             &cfg.Server.Port,
		EnvInitialAuthIndex: &cfg.Server.InitialAuthIndex,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}
