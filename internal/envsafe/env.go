// Package envsafe builds the environment handed to scanner subprocesses.
package envsafe

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var engineAllowedEnv = map[string]struct{}{
	"PATH":            {},
	"HOME":            {},
	"USER":            {},
	"LOGNAME":         {},
	"SHELL":           {},
	"TERM":            {},
	"LANG":            {},
	"LC_ALL":          {},
	"LC_CTYPE":        {},
	"TMPDIR":          {},
	"TMP":             {},
	"TEMP":            {},
	"XDG_CONFIG_HOME": {},
	"XDG_CACHE_HOME":  {},
	"XDG_DATA_HOME":   {},
	"SSL_CERT_FILE":   {},
	"SSL_CERT_DIR":    {},
	"HTTP_PROXY":      {},
	"HTTPS_PROXY":     {},
	"NO_PROXY":        {},
	"http_proxy":      {},
	"https_proxy":     {},
	"no_proxy":        {},
	"DOCKER_HOST":     {},
	"DOCKER_CONFIG":   {},
}

// Scanner-specific settings are forwarded by prefix.
var engineAllowedPrefixes = []string{
	"TRIVY_",
	"SEMGREP_",
	"KICS_",
	"SCANCOORD_",
}

// EngineEnv returns a deterministic allowlisted env for engine subprocesses.
// extra entries ("KEY=VALUE") are always forwarded and win over in.
func EngineEnv(in []string, extra ...string) []string {
	outMap := make(map[string]string, len(engineAllowedEnv))
	for _, kv := range in {
		key, val, ok := splitKV(kv)
		if !ok || !allowed(key) {
			continue
		}
		if key == "PATH" {
			val = sanitizePathValue(val)
		}
		outMap[key] = val
	}
	for _, kv := range extra {
		if key, val, ok := splitKV(kv); ok {
			outMap[key] = val
		}
	}
	if v, ok := outMap["PATH"]; !ok || strings.TrimSpace(v) == "" {
		outMap["PATH"] = defaultSafePath()
	}

	keys := make([]string, 0, len(outMap))
	for k := range outMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+outMap[k])
	}
	return out
}

func allowed(key string) bool {
	if _, ok := engineAllowedEnv[key]; ok {
		return true
	}
	for _, prefix := range engineAllowedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func splitKV(kv string) (string, string, bool) {
	idx := strings.IndexByte(kv, '=')
	if idx <= 0 {
		return "", "", false
	}
	return kv[:idx], kv[idx+1:], true
}

func sanitizePathValue(in string) string {
	if strings.TrimSpace(in) == "" {
		return defaultSafePath()
	}

	parts := strings.Split(in, string(os.PathListSeparator))
	seen := map[string]struct{}{}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || !filepath.IsAbs(part) {
			continue
		}
		clean := filepath.Clean(part)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return defaultSafePath()
	}
	return strings.Join(out, string(os.PathListSeparator))
}

func defaultSafePath() string {
	return "/usr/bin:/bin:/usr/sbin:/sbin"
}
