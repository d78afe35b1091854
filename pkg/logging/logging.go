// Package logging configures the logrus logger every launchpad component
// writes to.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mumoshu/launchpad/pkg/config"
)

type Options struct {
	Config  config.LogConfig
	Verbose bool
	// Output is where log lines go besides the log file. Defaults to stderr.
	Output io.Writer
}

// New returns a logger configured from o. The returned closer flushes and
// closes the log file, if one is configured.
func New(o Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	closer, err := Configure(log, o)
	if err != nil {
		return nil, nil, err
	}
	return log, closer, nil
}

// Configure applies o to an existing logger.
func Configure(log *logrus.Logger, o Options) (io.Closer, error) {
	c := o.Config

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "log.level")
	}
	if o.Verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	formatter, err := NewFormatter(c.Format, c.Colors, isTerminal(out))
	if err != nil {
		return nil, err
	}
	log.SetFormatter(formatter)

	var closer io.Closer = nopCloser{}
	if c.File != "" {
		file := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
		}
		closer = file
		out = io.MultiWriter(out, file)
	}
	log.SetOutput(out)

	return closer, nil
}

// NewFormatter returns the formatter for one of the text, color, json or
// message formats.
func NewFormatter(format string, colors map[string]string, tty bool) (logrus.Formatter, error) {
	switch format {
	case "", "text":
		return newTextFormatter(config.AppName, colors, false), nil
	case "color":
		return newTextFormatter(config.AppName, colors, tty), nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	case "message":
		return &MessageOnlyFormatter{}, nil
	default:
		return nil, fmt.Errorf("unexpected output format specified: %s", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
