// Package plan reads launch plans, the YAML files that describe a supervised
// run step by step, and turns them into supervisor steps.
package plan

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/mumoshu/launchpad/pkg/get"
	"github.com/mumoshu/launchpad/pkg/supervisor"
	"github.com/mumoshu/launchpad/pkg/util/maputil"
)

type Def struct {
	Name        string                 `yaml:"name,omitempty" mapstructure:"name"`
	Description string                 `yaml:"description,omitempty" mapstructure:"description"`
	Values      map[string]interface{} `yaml:"values,omitempty" mapstructure:"values"`
	Grace       time.Duration          `yaml:"grace,omitempty" mapstructure:"grace"`
	Readiness   ReadinessDef           `yaml:"readiness,omitempty" mapstructure:"readiness"`
	Steps       []StepDef              `yaml:"steps" mapstructure:"steps"`
}

type ReadinessDef struct {
	Interval    time.Duration `yaml:"interval,omitempty" mapstructure:"interval"`
	MaxAttempts int           `yaml:"max_attempts,omitempty" mapstructure:"max_attempts"`
}

type StepDef struct {
	Name string `yaml:"name" mapstructure:"name"`

	// exactly one of these
	TempDir  *string `yaml:"tempdir,omitempty" mapstructure:"tempdir"`
	Fetch    string  `yaml:"fetch,omitempty" mapstructure:"fetch"`
	Activate string  `yaml:"activate,omitempty" mapstructure:"activate"`
	Open     string  `yaml:"open,omitempty" mapstructure:"open"`
	Run      Words   `yaml:"run,omitempty" mapstructure:"run"`

	Keep        bool              `yaml:"keep,omitempty" mapstructure:"keep"`
	Blocking    bool              `yaml:"blocking,omitempty" mapstructure:"blocking"`
	Interactive bool              `yaml:"interactive,omitempty" mapstructure:"interactive"`
	Dir         string            `yaml:"dir,omitempty" mapstructure:"dir"`
	Env         map[string]string `yaml:"env,omitempty" mapstructure:"env"`
	OnFailure   string            `yaml:"on_failure,omitempty" mapstructure:"on_failure"`
	Optional    bool              `yaml:"optional,omitempty" mapstructure:"optional"`
	Ready       *ReadyDef         `yaml:"ready,omitempty" mapstructure:"ready"`
	Cleanup     *CleanupDef       `yaml:"cleanup,omitempty" mapstructure:"cleanup"`
}

type ReadyDef struct {
	Process     string        `yaml:"process,omitempty" mapstructure:"process"`
	Command     Words         `yaml:"command,omitempty" mapstructure:"command"`
	TCP         string        `yaml:"tcp,omitempty" mapstructure:"tcp"`
	HTTP        string        `yaml:"http,omitempty" mapstructure:"http"`
	File        string        `yaml:"file,omitempty" mapstructure:"file"`
	Interval    time.Duration `yaml:"interval,omitempty" mapstructure:"interval"`
	MaxAttempts int           `yaml:"max_attempts,omitempty" mapstructure:"max_attempts"`
}

type CleanupDef struct {
	Kill   string `yaml:"kill,omitempty" mapstructure:"kill"`
	Remove string `yaml:"remove,omitempty" mapstructure:"remove"`
}

// Words is a command line. In plan files it is either a list or a string
// split like a POSIX shell would split it.
type Words []string

var templateRe = regexp.MustCompile(`\{\{.*?\}\}`)

// SplitCommand splits line into words. Template actions are kept intact even
// when they contain spaces, so `-o{{ .WorkDir }}` stays one word.
func SplitCommand(line string) (Words, error) {
	var actions []string
	protected := templateRe.ReplaceAllStringFunc(line, func(a string) string {
		actions = append(actions, a)
		return fmt.Sprintf("\x00%d\x00", len(actions)-1)
	})

	words, err := shellwords.Parse(protected)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing command %q", line)
	}
	if len(words) == 0 {
		return nil, errors.Errorf("empty command %q", line)
	}

	for i, w := range words {
		for j, a := range actions {
			w = strings.Replace(w, fmt.Sprintf("\x00%d\x00", j), a, 1)
		}
		words[i] = w
	}
	return Words(words), nil
}

func invalid(err error) error {
	return supervisor.NewStepError(supervisor.ConfigInvalid, "", err)
}

// Parse reads a plan from YAML. Schema violations and decoding errors are
// reported as ConfigInvalid.
func Parse(bs []byte) (*Def, error) {
	d, err := parse(bs)
	if err != nil {
		return nil, invalid(err)
	}
	return d, nil
}

func parse(bs []byte) (*Def, error) {
	var raw interface{}
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing plan")
	}
	if raw == nil {
		return nil, errors.New("plan is empty")
	}

	doc, err := maputil.RecursivelyStringifyKeys(raw)
	if err != nil {
		return nil, errors.Wrap(err, "plan must be a mapping")
	}

	if err := Validate(doc); err != nil {
		return nil, err
	}

	return decode(doc)
}

// Load fetches a plan from a local path or any go-getter source.
func Load(ctx context.Context, src string) (*Def, error) {
	bs, err := get.Bytes(ctx, src)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "reading plan %s", src))
	}
	d, err := parse(bs)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "loading plan %s", src))
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(baseName(src), ".yaml")
	}
	return d, nil
}

func baseName(src string) string {
	src = strings.SplitN(src, "?", 2)[0]
	if i := strings.LastIndexAny(src, `/\`); i >= 0 {
		return src[i+1:]
	}
	return src
}

var wordsType = reflect.TypeOf(Words{})

func wordsHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != wordsType || from.Kind() != reflect.String {
		return data, nil
	}
	return SplitCommand(data.(string))
}

func decode(doc map[string]interface{}) (*Def, error) {
	d := &Def{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			wordsHook,
		),
		ErrorUnused: true,
		Result:      d,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, errors.Wrap(err, "decoding plan")
	}
	return d, nil
}

// MergeValues layers the values templates see. From lowest to highest:
// settings, which include every configuration default, then the plan's
// values, then explicit, the settings a config file, environment variable or
// flag actually set.
func (d *Def) MergeValues(settings, explicit map[string]interface{}) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	for _, layer := range []map[string]interface{}{settings, d.Values, explicit} {
		if err := mergo.Merge(&values, layer, mergo.WithOverride); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return values, nil
}

func (s *StepDef) kinds() []string {
	var ks []string
	if s.TempDir != nil {
		ks = append(ks, "tempdir")
	}
	if s.Fetch != "" {
		ks = append(ks, "fetch")
	}
	if s.Activate != "" {
		ks = append(ks, "activate")
	}
	if s.Open != "" {
		ks = append(ks, "open")
	}
	if len(s.Run) > 0 {
		ks = append(ks, "run")
	}
	return ks
}

// Check reports structural problems the schema cannot express.
func (d *Def) Check() error {
	seen := map[string]bool{}
	var problems []string
	for i, s := range d.Steps {
		where := fmt.Sprintf("steps[%d] (%s)", i, s.Name)
		if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate step name", where))
		}
		seen[s.Name] = true

		switch ks := s.kinds(); len(ks) {
		case 1:
		case 0:
			problems = append(problems, fmt.Sprintf("%s: needs one of tempdir, fetch, activate, open or run", where))
		default:
			problems = append(problems, fmt.Sprintf("%s: %s are mutually exclusive", where, strings.Join(ks, ", ")))
		}

		if len(s.Run) == 0 && (s.Blocking || s.Interactive || s.Ready != nil || s.OnFailure != "" || len(s.Env) > 0) {
			problems = append(problems, fmt.Sprintf("%s: blocking, interactive, ready, on_failure and env need run", where))
		}
		if s.Interactive && !s.Blocking {
			problems = append(problems, fmt.Sprintf("%s: interactive commands must be blocking", where))
		}
		if r := s.Ready; r != nil && r.Process == "" && len(r.Command) == 0 && r.TCP == "" && r.HTTP == "" && r.File == "" {
			problems = append(problems, fmt.Sprintf("%s: ready needs at least one of process, command, tcp, http or file", where))
		}
	}
	if len(problems) > 0 {
		return invalid(&ValidationError{Errors: problems})
	}
	return nil
}
