package plan

import (
	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// YAML renders d back into plan file syntax.
func (d *Def) YAML() (string, error) {
	bs, err := yaml.Marshal(d)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(bs), nil
}

// Pretty renders d as an annotated Go value, with every field visible.
func (d *Def) Pretty() string {
	return pretty.Sprint(d)
}
