package supervisor

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/authcap/internal/capture"
)

const defaultSystemRoot = `C:\Windows`

// captureEnv builds the capture process environment: the inherited
// environment with the capture variables and SystemRoot applied on top.
func (s *Supervisor) captureEnv(mode capture.Mode, target *int) []string {
	base := s.cfg.Env
	if base == nil {
		base = os.Environ()
	}

	targetValue := ""
	if target != nil {
		targetValue = strconv.Itoa(*target)
	}
	systemRoot := lookupEnv(base, "SystemRoot")
	if systemRoot == "" {
		systemRoot = lookupEnv(base, "WINDIR")
	}
	if systemRoot == "" {
		systemRoot = defaultSystemRoot
	}

	return mergeEnv(base, map[string]string{
		capture.EnvMode:        string(mode),
		capture.EnvTargetIndex: targetValue,
		capture.EnvLang:        s.cfg.Lang,
		"SystemRoot":           systemRoot,
	})
}

func lookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, found := strings.Cut(env[i], "="); found && k == key {
			return v
		}
	}
	return ""
}

// mergeEnv returns env with overrides replacing any existing entries.
func mergeEnv(env []string, overrides map[string]string) []string {
	out := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[k]; replaced {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
