package process

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestLineWriter(t *testing.T) {
	log, hook := test.NewNullLogger()
	w := newLineWriter(logrus.NewEntry(log), logrus.WarnLevel)

	for _, chunk := range []string{"hel", "lo\nwor", "ld\r\n", "tail"} {
		n, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		require.Equal(t, len(chunk), n)
	}
	require.Len(t, hook.AllEntries(), 2)
	require.NoError(t, w.Close())

	var lines []string
	for _, e := range hook.AllEntries() {
		require.Equal(t, logrus.WarnLevel, e.Level)
		lines = append(lines, e.Message)
	}
	require.Equal(t, []string{"hello", "world", "tail"}, lines)
}

func TestLineWriter_SplitsLongLines(t *testing.T) {
	log, hook := test.NewNullLogger()
	w := newLineWriter(logrus.NewEntry(log), logrus.InfoLevel)

	long := strings.Repeat("a", maxLineLength+10)
	_, err := w.Write([]byte(long + "\nafter\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	require.Len(t, entries[0].Message, maxLineLength)
	require.Equal(t, strings.Repeat("a", 10), entries[1].Message)
	require.Equal(t, "after", entries[2].Message)
}
