package logging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/colorstring"
	"github.com/sirupsen/logrus"
)

// textFormatter prints `launchpad.step ≫ message`, with the prefix colored by
// level. Lines a child wrote to stderr are marked as such.
type textFormatter struct {
	app      string
	colorize *colorstring.Colorize
	colors   map[logrus.Level]string
}

func newTextFormatter(app string, colors map[string]string, enable bool) *textFormatter {
	f := &textFormatter{
		app: app,
		colorize: &colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !enable,
			Reset:   true,
		},
		colors: map[logrus.Level]string{},
	}
	for _, l := range logrus.AllLevels {
		c, ok := colors[l.String()]
		if !ok {
			c = "default"
		}
		f.colors[l] = c
	}
	return f
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var prefix = "[" + f.colors[entry.Level] + "]" + f.app
	if step, ok := entry.Data["step"].(string); ok && step != "" {
		prefix = fmt.Sprintf("%s.%s", prefix, step)
	}
	if stream, ok := entry.Data["stream"].(string); ok && stream == "stderr" {
		prefix = prefix + "[dark_gray](stderr)[default]"
	}
	prefix = prefix + " ≫ "

	msg := entry.Message
	if fields := extraFields(entry.Data); fields != "" {
		msg = msg + " " + fields
	}

	// only the prefix goes through colorstring, child output may contain brackets
	return []byte(f.colorize.Color(prefix) + msg + "\n"), nil
}

func extraFields(data logrus.Fields) string {
	keys := []string{}
	for k := range data {
		switch k {
		case "step", "stream", "run":
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return "(" + strings.Join(pairs, " ") + ")"
}

// MessageOnlyFormatter prints nothing but the message, for piping child
// output through unchanged.
type MessageOnlyFormatter struct {
}

func (f *MessageOnlyFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}
