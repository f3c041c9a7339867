// Package connector describes the input partitions a scan reads.
package connector

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
)

// Split is an opaque description of one partition of a scan's input. Once added to a task it belongs to the task.
type Split interface {
	String() string
}

// FileSplit is the byte range [Start, Start+Length) of a tuple file. A block of the file belongs to the split
// whose range contains the block's first byte, so splits that tile a file read every block exactly once.
type FileSplit struct {
	Path   string
	Start  int64
	Length int64
}

func (s *FileSplit) String() string {
	return fmt.Sprintf("%s[%d:%d]", s.Path, s.Start, s.Start+s.Length)
}

// WholeFileSplit returns a single split covering the file at path.
func WholeFileSplit(path string) (*FileSplit, error) {
	splits, err := MakeFileSplits(path, 1)
	if err != nil {
		return nil, err
	}
	return splits[0].(*FileSplit), nil
}

// MakeFileSplits divides the file at path into n contiguous byte ranges of near-equal length that together
// cover the whole file.
func MakeFileSplits(path string, n int) ([]Split, error) {
	if n <= 0 {
		return nil, errors.Newf("cannot make %d splits", n)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "make splits")
	}
	size := stat.Size()
	splits := make([]Split, n)
	var start int64
	for i := 0; i < n; i++ {
		// spread the remainder over the first splits
		length := size / int64(n)
		if int64(i) < size%int64(n) {
			length++
		}
		splits[i] = &FileSplit{Path: path, Start: start, Length: length}
		start += length
	}
	return splits, nil
}
