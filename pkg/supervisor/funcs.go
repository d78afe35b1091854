package supervisor

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/mumoshu/launchpad/pkg/util/maputil"
)

func dig(path string, val interface{}) (interface{}, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type of value %+v: %T", val, val)
	}
	v, err := maputil.GetValueAtPath(m, strings.Split(path, "."))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("key \"%s\" not found", path)
	}
	return v, nil
}

func toYaml(val interface{}) (string, error) {
	bytes, err := yaml.Marshal(val)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func fromYaml(str string) map[string]interface{} {
	var raw interface{}
	if err := yaml.Unmarshal([]byte(str), &raw); err != nil {
		return map[string]interface{}{"Error": err.Error()}
	}
	if raw == nil {
		return map[string]interface{}{}
	}
	m, err := maputil.RecursivelyStringifyKeys(raw)
	if err != nil {
		return map[string]interface{}{"Error": err.Error()}
	}
	return m
}

// readFile reads path, relative to the work dir when there is one.
func (c *RunContext) readFile(path string) (string, error) {
	if !filepath.IsAbs(path) && c.WorkDir != "" {
		path = filepath.Join(c.WorkDir, path)
	}
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
