package storage

import (
	"encoding/binary"
	"io"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"mit.edu/dsg/vexec/common"
)

// A tuple file stores fixed-width tuples in independently compressed blocks, followed by a block index, the
// column types and a fixed-size footer:
//
//	[block 0] ... [block n-1] [index: n * 16 bytes] [types: numColumns bytes] [footer: 36 bytes]
//
// Each block starts with an 8 byte header (payload length, row count) followed by the zstd-compressed rows.
// Index entries are (offset uint64, size uint32, rows uint32). The footer holds the index offset, the block
// count, the column count, a random 16 byte file ID and a magic number. All integers are little-endian.
//
// The file ID changes every time a path is rewritten, so cached blocks of an older file at the same path are
// never served for the new one.
//
// Because the index locates every block, a byte range of the file is a valid split on its own: the split owns
// the blocks whose first byte falls inside the range.
const (
	tupleFileMagic     uint32 = 0x46584556 // "VEXF"
	blockHeaderSize           = 8
	blockIndexEntrySize       = 16
	tupleFileFooterSize       = 36

	// DefaultRowsPerBlock is used by writers that are given a non-positive block size.
	DefaultRowsPerBlock = 256
)

var blockDecoder *zstd.Decoder

func init() {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	blockDecoder = d
}

// BlockHandle locates one block of a tuple file.
type BlockHandle struct {
	Offset int64
	Size   int64
	Rows   int
}

// TupleFileWriter appends tuples to a new tuple file, cutting a block every rowsPerBlock rows.
type TupleFileWriter struct {
	file         *os.File
	desc         *RawTupleDesc
	enc          *zstd.Encoder
	rowsPerBlock int

	pending     []byte
	pendingRows int
	compressed  []byte
	offset      int64
	blocks      []BlockHandle
	closed      bool
}

// CreateTupleFile creates (or truncates) the file at path and returns a writer for tuples of the given layout.
func CreateTupleFile(path string, desc *RawTupleDesc, rowsPerBlock int) (*TupleFileWriter, error) {
	if rowsPerBlock <= 0 {
		rowsPerBlock = DefaultRowsPerBlock
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &TupleFileWriter{
		file:         f,
		desc:         desc,
		enc:          enc,
		rowsPerBlock: rowsPerBlock,
		pending:      make([]byte, 0, rowsPerBlock*desc.BytesPerTuple()),
	}, nil
}

// Append serializes t into the current block, flushing the block once it is full.
func (w *TupleFileWriter) Append(t Tuple) error {
	common.Assert(!w.closed, "append to a closed tuple file writer")
	n := len(w.pending)
	w.pending = w.pending[:n+w.desc.BytesPerTuple()]
	t.WriteToBuffer(w.pending[n:], w.desc)
	w.pendingRows++
	if w.pendingRows >= w.rowsPerBlock {
		return w.flush()
	}
	return nil
}

func (w *TupleFileWriter) flush() error {
	if w.pendingRows == 0 {
		return nil
	}
	w.compressed = w.enc.EncodeAll(w.pending, w.compressed[:0])

	var header [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:], uint32(len(w.compressed)))
	binary.LittleEndian.PutUint32(header[4:], uint32(w.pendingRows))
	if _, err := w.file.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.file.Write(w.compressed); err != nil {
		return err
	}

	size := int64(blockHeaderSize + len(w.compressed))
	w.blocks = append(w.blocks, BlockHandle{Offset: w.offset, Size: size, Rows: w.pendingRows})
	w.offset += size
	w.pending = w.pending[:0]
	w.pendingRows = 0
	return nil
}

// Close flushes the last block, writes the index and footer, and closes the file. It returns the handles of
// every block written.
func (w *TupleFileWriter) Close() ([]BlockHandle, error) {
	if w.closed {
		return w.blocks, nil
	}
	w.closed = true
	defer w.enc.Close()

	if err := w.flush(); err != nil {
		_ = w.file.Close()
		return nil, err
	}

	tail := make([]byte, 0, len(w.blocks)*blockIndexEntrySize+w.desc.NumColumns()+tupleFileFooterSize)
	for _, b := range w.blocks {
		tail = binary.LittleEndian.AppendUint64(tail, uint64(b.Offset))
		tail = binary.LittleEndian.AppendUint32(tail, uint32(b.Size))
		tail = binary.LittleEndian.AppendUint32(tail, uint32(b.Rows))
	}
	for _, t := range w.desc.GetFieldTypes() {
		tail = append(tail, byte(t))
	}
	tail = binary.LittleEndian.AppendUint64(tail, uint64(w.offset))
	tail = binary.LittleEndian.AppendUint32(tail, uint32(len(w.blocks)))
	tail = binary.LittleEndian.AppendUint32(tail, uint32(w.desc.NumColumns()))
	fileID := uuid.New()
	tail = append(tail, fileID[:]...)
	tail = binary.LittleEndian.AppendUint32(tail, tupleFileMagic)

	if _, err := w.file.Write(tail); err != nil {
		_ = w.file.Close()
		return nil, err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return nil, err
	}
	return w.blocks, w.file.Close()
}

// TupleFile is an open tuple file. Reads are safe for concurrent use.
type TupleFile struct {
	path   string
	id     uuid.UUID
	file   *os.File
	desc   *RawTupleDesc
	blocks []BlockHandle
}

// OpenTupleFile opens the tuple file at path and loads its block index and column types.
func OpenTupleFile(path string) (*TupleFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open tuple file")
	}
	tf, err := readTupleFileMetadata(path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return tf, nil
}

func readTupleFileMetadata(path string, f *os.File) (*TupleFile, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size < tupleFileFooterSize {
		return nil, common.NewError(common.CorruptFileError, "%s: file too short for footer (%d bytes)", path, size)
	}

	var footer [tupleFileFooterSize]byte
	if _, err := f.ReadAt(footer[:], size-tupleFileFooterSize); err != nil {
		return nil, err
	}
	indexOffset := int64(binary.LittleEndian.Uint64(footer[0:]))
	numBlocks := int64(binary.LittleEndian.Uint32(footer[8:]))
	numColumns := int64(binary.LittleEndian.Uint32(footer[12:]))
	var fileID uuid.UUID
	copy(fileID[:], footer[16:32])
	if magic := binary.LittleEndian.Uint32(footer[32:]); magic != tupleFileMagic {
		return nil, common.NewError(common.CorruptFileError, "%s: bad magic %#x", path, magic)
	}
	tailSize := numBlocks*blockIndexEntrySize + numColumns
	if indexOffset < 0 || indexOffset+tailSize+tupleFileFooterSize != size {
		return nil, common.NewError(common.CorruptFileError, "%s: index at %d does not fit file of %d bytes", path, indexOffset, size)
	}

	tail := make([]byte, tailSize)
	if _, err := f.ReadAt(tail, indexOffset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	blocks := make([]BlockHandle, numBlocks)
	for i := range blocks {
		entry := tail[i*blockIndexEntrySize:]
		blocks[i] = BlockHandle{
			Offset: int64(binary.LittleEndian.Uint64(entry[0:])),
			Size:   int64(binary.LittleEndian.Uint32(entry[8:])),
			Rows:   int(binary.LittleEndian.Uint32(entry[12:])),
		}
	}
	types := make([]common.Type, numColumns)
	for i := range types {
		types[i] = common.Type(tail[numBlocks*blockIndexEntrySize+int64(i)])
		if types[i] != common.IntType && types[i] != common.StringType {
			return nil, common.NewError(common.CorruptFileError, "%s: unknown column type %d", path, types[i])
		}
	}
	return &TupleFile{path: path, id: fileID, file: f, desc: NewRawTupleDesc(types), blocks: blocks}, nil
}

// ID returns the file ID recorded in the footer. Two writes of the same path get different IDs.
func (tf *TupleFile) ID() uuid.UUID {
	return tf.id
}

// Desc returns the tuple layout recorded in the file.
func (tf *TupleFile) Desc() *RawTupleDesc {
	return tf.desc
}

// Blocks returns the handles of every block in file order.
func (tf *TupleFile) Blocks() []BlockHandle {
	return tf.blocks
}

// BlocksInRange returns the blocks whose first byte lies in [start, start+length).
func (tf *TupleFile) BlocksInRange(start, length int64) []BlockHandle {
	end := start + length
	var out []BlockHandle
	for _, b := range tf.blocks {
		if b.Offset >= start && b.Offset < end {
			out = append(out, b)
		}
	}
	return out
}

// ReadBlock returns the decompressed rows of block h. When a process-wide block cache is installed the block is
// served from (and pinned in) the cache; the returned release function must be called once the caller no longer
// reads the bytes. Without a cache the block is decoded into a fresh buffer and release is a no-op.
func (tf *TupleFile) ReadBlock(h BlockHandle) ([]byte, func(), error) {
	if c := DefaultBlockCache(); c != nil {
		frame, err := c.GetBlock(BlockID{Path: tf.path, File: tf.id, Offset: h.Offset}, func() ([]byte, error) {
			return tf.loadBlock(h)
		})
		if err != nil {
			return nil, nil, err
		}
		return frame.Bytes(), func() { c.UnpinBlock(frame) }, nil
	}
	data, err := tf.loadBlock(h)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}

func (tf *TupleFile) loadBlock(h BlockHandle) ([]byte, error) {
	raw := make([]byte, h.Size)
	if _, err := tf.file.ReadAt(raw, h.Offset); err != nil {
		return nil, errors.Wrapf(err, "%s: read block at %d", tf.path, h.Offset)
	}
	payloadLen := int64(binary.LittleEndian.Uint32(raw[0:]))
	rows := int(binary.LittleEndian.Uint32(raw[4:]))
	if payloadLen+blockHeaderSize != h.Size || rows != h.Rows {
		return nil, common.NewError(common.CorruptFileError, "%s: block at %d disagrees with index", tf.path, h.Offset)
	}
	want := rows * tf.desc.BytesPerTuple()
	data, err := blockDecoder.DecodeAll(raw[blockHeaderSize:], make([]byte, 0, want))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decompress block at %d", tf.path, h.Offset)
	}
	if len(data) != want {
		return nil, common.NewError(common.CorruptFileError, "%s: block at %d decoded to %d bytes, expected %d", tf.path, h.Offset, len(data), want)
	}
	return data, nil
}

// Close closes the underlying OS file.
func (tf *TupleFile) Close() error {
	return tf.file.Close()
}

// WriteTupleFile writes all tuples to a new tuple file at path and returns its block handles.
func WriteTupleFile(path string, desc *RawTupleDesc, rowsPerBlock int, tuples []Tuple) ([]BlockHandle, error) {
	w, err := CreateTupleFile(path, desc, rowsPerBlock)
	if err != nil {
		return nil, err
	}
	for _, t := range tuples {
		if err := w.Append(t); err != nil {
			_, _ = w.Close()
			return nil, err
		}
	}
	return w.Close()
}
