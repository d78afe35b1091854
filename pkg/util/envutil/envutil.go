package envutil

import (
	"os"
	"sort"
	"strings"
)

func ParseEnviron() map[string]string {
	return Parse(os.Environ())
}

// Parse turns KEY=VALUE pairs into a map. Lines without "=" are skipped,
// which also drops the noise some shells print before the environment dump.
func Parse(pairs []string) map[string]string {
	env := map[string]string{}

	for _, pair := range pairs {
		pair = strings.TrimRight(pair, "\r")
		splits := strings.SplitN(pair, "=", 2)
		if len(splits) != 2 || splits[0] == "" {
			continue
		}
		env[splits[0]] = splits[1]
	}

	return env
}

// Diff returns the entries of after that are missing from, or different in, before.
func Diff(before, after map[string]string) map[string]string {
	changed := map[string]string{}
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			changed[k] = v
		}
	}
	return changed
}

// Environ merges overlays on top of base and renders the result in
// KEY=VALUE form, sorted by key so children see a stable environment.
func Environ(base map[string]string, overlays ...map[string]string) []string {
	merged := map[string]string{}
	for k, v := range base {
		merged[k] = v
	}
	for _, o := range overlays {
		for k, v := range o {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
