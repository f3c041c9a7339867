package operatortest

import (
	"github.com/stretchr/testify/suite"
	"mit.edu/dsg/vexec/reference"
)

// OperatorTestBase is a testify suite that gives every test a fresh Harness. Embed it and call suite.Run.
//
// The config comes from the file named by VEXEC_TEST_CONFIG, or DefaultConfig. A suite may change Config in its own
// SetupTest before calling the base one, for example to run without the block cache.
type OperatorTestBase struct {
	suite.Suite
	Config  Config
	Harness *Harness

	restoreCache func()
}

func (s *OperatorTestBase) SetupSuite() {
	cfg, err := ConfigFromEnv()
	s.Require().NoError(err)
	s.Config = cfg
	if cfg.UseAsyncCache {
		SharedBlockCache(cfg.CacheBlocks)
	}
}

func (s *OperatorTestBase) SetupTest() {
	logger := NewTestLogger(s.T(), s.Config.LogLevel)
	s.Harness = &Harness{
		T:      s.T(),
		Runner: reference.NewQueryRunner(logger),
		Config: s.Config,
		Logger: logger,
	}
	if s.Config.UseAsyncCache {
		s.restoreCache = InstallAsyncCache(s.Config.CacheBlocks)
	} else {
		s.restoreCache = UninstallAsyncCache()
	}
}

func (s *OperatorTestBase) TearDownTest() {
	if s.restoreCache != nil {
		s.restoreCache()
		s.restoreCache = nil
	}
}
