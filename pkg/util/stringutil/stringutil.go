package stringutil

import (
	"regexp"
	"strings"

	"github.com/huandu/xstrings"
)

var (
	regex       = regexp.MustCompile(`-([0-9]+)`)
	envReplacer = strings.NewReplacer("-", "_", ".", "_")
)

// ToEnvironmentName converts a config key like "app.listenPort" into "APP_LISTEN_PORT".
func ToEnvironmentName(name string) string {
	n := strings.Trim(regex.ReplaceAllString(xstrings.ToKebabCase(name), "$1-"), "-")
	return strings.ToUpper(envReplacer.Replace(n))
}

// Mask hides all but the first character of a secret for log output.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	return secret[:1] + strings.Repeat("*", 7)
}
