package operatortest

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type testLogWriter struct {
	t testing.TB
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a logfmt logger writing to t.Log that keeps entries at lvl and above. lvl is one of
// debug, info, warn, error or none; empty means warn.
func NewTestLogger(t testing.TB, lvl string) log.Logger {
	opt, err := levelOption(lvl)
	if err != nil {
		t.Fatal(err)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(&testLogWriter{t: t}))
	logger = log.With(logger, "test", t.Name())
	return level.NewFilter(logger, opt)
}

func levelOption(lvl string) (level.Option, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "", "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	case "none":
		return level.AllowNone(), nil
	}
	return nil, errors.Newf("unknown log level %q", lvl)
}
