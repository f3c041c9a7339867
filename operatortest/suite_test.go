package operatortest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

type scanSuite struct {
	OperatorTestBase
	path string
}

func (s *scanSuite) SetupTest() {
	s.OperatorTestBase.SetupTest()
	s.path = filepath.Join(s.T().TempDir(), "t.vex")
	s.Harness.CreateTable(s.path, "t", tSchema, tRows(300))
}

func (s *scanSuite) TestFilterProject() {
	plan := planner.NewPlanBuilder().
		TableScan("t", tSchema).
		Filter("id % 3 = 0 AND name IS NOT NULL").
		Project("id * 2 AS twice", "name").
		MustPlan()
	s.Harness.AssertQuery(plan, s.Harness.FileSplits(s.path, 4),
		"SELECT id * 2, name FROM t WHERE id % 3 = 0 AND name IS NOT NULL")
}

func (s *scanSuite) TestTopN() {
	plan := planner.NewPlanBuilder().TableScan("t", tSchema).TopN(10, "id DESC").MustPlan()
	task := s.Harness.AssertQuery(plan, s.Harness.FileSplits(s.path, 2),
		"SELECT * FROM t ORDER BY id DESC LIMIT 10", 0)
	s.Equal(int64(10), task.Stats().Rows)
}

func (s *scanSuite) TestAggregate() {
	plan := planner.NewPlanBuilder().
		TableScan("t", tSchema).
		Aggregate([]string{"id % 5"}, "count(*)", "count(name)", "max(name)").
		MustPlan()
	s.Harness.AssertQuery(plan, s.Harness.FileSplits(s.path, 3),
		"SELECT id % 5, count(*), count(name), max(name) FROM t GROUP BY id % 5")
}

func (s *scanSuite) TestNestedLoopJoin() {
	s.Require().NoError(s.Harness.Runner.CreateTable("c", cSchema))
	s.Require().NoError(s.Harness.Runner.InsertRows("c", cRows()))

	ids := &planner.IDGenerator{}
	cities := planner.NewPlanBuilderWithIDs(ids).Values(cSchema, cRows()).MustPlan()
	b := planner.NewPlanBuilderWithIDs(ids).TableScan("t", tSchema)
	scan := b.PlanNodeID()
	plan := b.NestedLoopJoin(cities, "l.id < r.id AND r.city = 'Boston'").MustPlan()

	task := s.Harness.AssertQueryWithSplitMap(plan, SplitsByNode{scan: s.Harness.FileSplits(s.path, 2)},
		"SELECT t.id, t.name, c.id, c.city FROM t, c WHERE t.id < c.id AND c.city = 'Boston'")
	s.Equal(int64(4+16+28), task.Stats().Rows)
}

func (s *scanSuite) TestMergeJoin() {
	s.Require().NoError(s.Harness.Runner.CreateTable("c", cSchema))
	s.Require().NoError(s.Harness.Runner.InsertRows("c", cRows()))

	ids := &planner.IDGenerator{}
	cities := planner.NewPlanBuilderWithIDs(ids).Values(cSchema, cRows()).MustPlan()
	b := planner.NewPlanBuilderWithIDs(ids).TableScan("t", tSchema)
	scan := b.PlanNodeID()
	plan := b.OrderBy("id").MergeJoin([]string{"id"}, cities, []string{"id"}).MustPlan()

	s.Harness.AssertQueryWithSplitMap(plan, SplitsByNode{scan: s.Harness.FileSplits(s.path, 3)},
		"SELECT * FROM t JOIN c ON t.id = c.id ORDER BY t.id", 0)
}

func (s *scanSuite) TestCacheFollowsConfig() {
	s.Equal(s.Config.UseAsyncCache, storage.DefaultBlockCache() != nil)
}

func TestOperatorTestBase(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	before := storage.DefaultBlockCache()
	suite.Run(t, new(scanSuite))
	if storage.DefaultBlockCache() != before {
		t.Error("block cache default was not restored")
	}
}

type uncachedSuite struct {
	OperatorTestBase
}

func (s *uncachedSuite) SetupTest() {
	s.Config.UseAsyncCache = false
	s.OperatorTestBase.SetupTest()
}

func (s *uncachedSuite) TestValues() {
	s.Nil(storage.DefaultBlockCache())
	plan := planner.NewPlanBuilder().Values(tSchema, tRows(12)).OrderBy("id DESC").Limit(4).MustPlan()
	s.Require().NoError(s.Harness.Runner.CreateTable("v", tSchema))
	s.Require().NoError(s.Harness.Runner.InsertRows("v", tRows(12)))
	s.Harness.AssertQueryNoSplits(plan, "SELECT * FROM v ORDER BY id DESC LIMIT 4", 0)
}

func TestOperatorTestBase_WithoutCache(t *testing.T) {
	suite.Run(t, new(uncachedSuite))
}
