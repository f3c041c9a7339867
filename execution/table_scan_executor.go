package execution

import (
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log/level"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// TableScanExecutor reads the tuple files named by the splits addressed to its plan node. It blocks waiting for
// splits until the task signals that no more will arrive.
type TableScanExecutor struct {
	plan   *planner.TableScanNode
	splits *splitQueue
	desc   *storage.RawTupleDesc

	// Runtime state
	ctx     *ExecutorContext
	file    *storage.TupleFile
	blocks  []storage.BlockHandle
	block   []byte
	release func()
	offset  int
	current storage.Tuple
	err     error
}

// NewTableScanExecutor creates a scan that consumes splits from queue.
func NewTableScanExecutor(plan *planner.TableScanNode, queue *splitQueue) *TableScanExecutor {
	return &TableScanExecutor{
		plan:   plan,
		splits: queue,
		desc:   storage.NewRawTupleDesc(plan.OutputSchema().Types()),
	}
}

func (e *TableScanExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *TableScanExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.err = nil
	return nil
}

func (e *TableScanExecutor) openSplit(split connector.Split) error {
	fs, ok := split.(*connector.FileSplit)
	if !ok {
		return errors.Newf("table scan %s cannot read split %s of type %T", e.plan.ID(), split, split)
	}
	f, err := storage.OpenTupleFile(fs.Path)
	if err != nil {
		return err
	}
	fileTypes := f.Desc().GetFieldTypes()
	planTypes := e.desc.GetFieldTypes()
	match := len(fileTypes) == len(planTypes)
	for i := 0; match && i < len(fileTypes); i++ {
		match = fileTypes[i] == planTypes[i]
	}
	if !match {
		_ = f.Close()
		return common.NewError(common.CorruptFileError, "%s has columns %v but table %s expects %v",
			fs.Path, fileTypes, e.plan.TableName, planTypes)
	}
	e.file = f
	e.blocks = f.BlocksInRange(fs.Start, fs.Length)
	level.Debug(e.ctx.Logger()).Log("msg", "scan split", "node", e.plan.ID(), "split", split, "blocks", len(e.blocks))
	return nil
}

func (e *TableScanExecutor) releaseBlock() {
	if e.release != nil {
		e.release()
		e.release = nil
	}
	e.block = nil
	e.offset = 0
}

func (e *TableScanExecutor) closeFile() error {
	e.releaseBlock()
	e.blocks = nil
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

func (e *TableScanExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	bpt := e.desc.BytesPerTuple()
	for {
		if e.block != nil && e.offset+bpt <= len(e.block) {
			e.current = storage.FromRawTuple(e.block[e.offset:e.offset+bpt], e.desc)
			e.offset += bpt
			return true
		}
		e.releaseBlock()

		if len(e.blocks) > 0 {
			h := e.blocks[0]
			e.blocks = e.blocks[1:]
			data, release, err := e.file.ReadBlock(h)
			if err != nil {
				e.err = err
				return false
			}
			e.block, e.release = data, release
			continue
		}

		if err := e.closeFile(); err != nil {
			e.err = err
			return false
		}
		split, err := e.splits.next(e.ctx.Context())
		if err != nil {
			e.err = err
			return false
		}
		if split == nil {
			return false
		}
		if err := e.openSplit(split); err != nil {
			e.err = errors.Wrapf(err, "split %s", split)
			return false
		}
	}
}

func (e *TableScanExecutor) Current() storage.Tuple {
	return e.current
}

func (e *TableScanExecutor) Error() error {
	return e.err
}

func (e *TableScanExecutor) Close() error {
	return e.closeFile()
}
