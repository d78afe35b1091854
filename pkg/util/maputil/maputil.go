package maputil

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// GetValueAtPath walks nested maps along keyComponents. Dashes in keys are
// treated as underscores so "max-attempts" finds "max_attempts".
func GetValueAtPath(cache map[string]interface{}, keyComponents []string) (interface{}, error) {
	k, rest := keyComponents[0], keyComponents[1:]

	k = strings.Replace(k, "-", "_", -1)

	if len(rest) == 0 {
		return cache[k], nil
	}

	switch nested := cache[k].(type) {
	case map[string]interface{}:
		return GetValueAtPath(nested, rest)
	case nil:
		return nil, nil
	default:
		return nil, errors.Errorf("%s is not a map[string]interface{}", k)
	}
}

// SetValueAtPath sets value at keyComponents, creating intermediate maps and
// replacing any non-map value found on the way.
func SetValueAtPath(m map[string]interface{}, keyComponents []string, value interface{}) {
	k, rest := keyComponents[0], keyComponents[1:]

	if len(rest) == 0 {
		m[k] = value
		return
	}

	nested, ok := m[k].(map[string]interface{})
	if !ok {
		nested = map[string]interface{}{}
		m[k] = nested
	}
	SetValueAtPath(nested, rest, value)
}

func Flatten(input map[string]interface{}) map[string]interface{} {
	result := map[string]interface{}{}

	for k, valOrMap := range input {
		if m, isMap := valOrMap.(map[string]interface{}); isMap {
			for k2, v2 := range Flatten(m) {
				result[fmt.Sprintf("%s.%s", k, k2)] = v2
			}
		} else {
			result[k] = valOrMap
		}
	}

	return result
}

// RecursivelyStringifyKeys helps converting any map object into a go-jsonscheme-friendly map
func RecursivelyStringifyKeys(m interface{}) (map[string]interface{}, error) {
	mm, err := recursivelyStringifyKeys(m)
	if err != nil {
		return nil, err
	}
	if ms, ok := mm.(map[string]interface{}); ok {
		return ms, nil
	}
	return nil, fmt.Errorf("bug: unexpected type of m: %T", mm)
}

func recursivelyStringifyKeys(m interface{}) (interface{}, error) {
	switch src := m.(type) {
	case map[string]interface{}:
		dst := map[string]interface{}{}
		for k, v1 := range src {
			v2, err := recursivelyStringifyKeys(v1)
			if err != nil {
				return nil, err
			}
			dst[k] = v2
		}
		return dst, nil
	case []interface{}:
		dst := make([]interface{}, len(src))
		for i, v1 := range src {
			v2, err := recursivelyStringifyKeys(v1)
			if err != nil {
				return nil, err
			}
			dst[i] = v2
		}
		return dst, nil
	case map[interface{}]interface{}:
		dst := map[string]interface{}{}
		for k1, v1 := range src {
			k2, ok := k1.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected type of key \"%v\": %T", k1, k1)
			}
			v2, err := recursivelyStringifyKeys(v1)
			if err != nil {
				return nil, err
			}
			dst[k2] = v2
		}
		return dst, nil
	}
	return m, nil
}
