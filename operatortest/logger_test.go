package operatortest

import (
	"fmt"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTB struct {
	testing.TB
	lines []string
}

func (c *captureTB) Logf(format string, args ...any) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func TestNewTestLogger(t *testing.T) {
	tb := &captureTB{TB: t}
	logger := NewTestLogger(tb, "info")
	require.NoError(t, level.Debug(logger).Log("msg", "hidden"))
	require.NoError(t, level.Info(logger).Log("msg", "shown", "rows", 3))
	require.Len(t, tb.lines, 1)
	assert.Equal(t, "test=TestNewTestLogger level=info msg=shown rows=3", tb.lines[0])
}

func TestLevelOption(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warn", "error", "none"} {
		_, err := levelOption(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := levelOption("verbose")
	assert.Error(t, err)
}
