// Package rescue implements a scanner that
// walks an arbitrary byte stream — a disk image, concatenated containers,
// a file at an unknown offset — looking for blocks, confirming them by
// full CRC, and emitting each to a per-UID output file.
package rescue

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// State names the scanner's position in its Scan -> Confirm -> Emit state
// machine.
type State int

const (
	StateScan State = iota
	StateConfirm
	StateEmit
)

// BlockFilter optionally restricts which candidate blocks are emitted.
type BlockFilter struct {
	// Type, if non-nil, restricts emission to this block type.
	Type *sbxblock.BlockType
	// UID, if non-nil, restricts emission to this UID.
	UID *[sbxspecs.FileUIDLen]byte
}

func (f BlockFilter) accepts(b *sbxblock.Block) bool {
	if f.Type != nil && b.Type() != *f.Type {
		return false
	}
	if f.UID != nil && b.UID != *f.UID {
		return false
	}
	return true
}

// Stats accumulates scan progress, persisted to the log file so a
// rescue run can resume.
type Stats struct {
	BytesProcessed int64
	MetaCount      int64
	DataCount      int64
}

// BlocksProcessed is the derived meta+data total the log file persists
// alongside the two per-type counts.
func (s Stats) BlocksProcessed() int64 { return s.MetaCount + s.DataCount }

// Options configures a Scanner.
type Options struct {
	OutputDir string
	// ForceMisalign advances the scanner one byte at a time instead of
	// the normal 128-byte stride, at a heavy performance cost, for
	// containers believed to begin at a non-128-aligned offset.
	ForceMisalign bool
	Filter        BlockFilter
	// Log, if non-nil, is read for a prior Stats to resume from and
	// written after every block that parses, whether or not Filter
	// accepts it.
	Log *Log
	// FromPos and ToPos restrict the scan to a byte-range window of the
	// stream. FromPos defaults to 0 (start) and ToPos to 0, meaning the
	// full stream length passed to Run. A resumed Log position wins over
	// FromPos if further along.
	FromPos int64
	ToPos   int64
}

// Scanner runs the rescue state machine over an io.ReaderAt-backed stream.
type Scanner struct {
	src    io.ReaderAt
	opts   Options
	stats  Stats
	outFor map[[sbxspecs.FileUIDLen]byte]*os.File

	// sessionID tags this run's per-UID output files with a fresh ULID so
	// that two rescue runs writing into the same OutputDir at once never
	// collide. Only used when the run isn't resuming from a Log, since a
	// resuming run must find and append to the file a prior run started.
	sessionID string
}

// NewScanner builds a scanner over src, resuming from a previously
// persisted Stats if opts.Log carries one.
func NewScanner(src io.ReaderAt, opts Options) (*Scanner, error) {
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("rescue: creating output directory: %w", err)
		}
	}

	s := &Scanner{
		src:       src,
		opts:      opts,
		outFor:    make(map[[sbxspecs.FileUIDLen]byte]*os.File),
		sessionID: ulid.Make().String(),
	}

	if opts.Log != nil {
		if prior, ok := opts.Log.Load(); ok {
			s.stats = prior
			s.stats.BytesProcessed = alignFloor(s.stats.BytesProcessed, scanStride(opts.ForceMisalign))
		}
	}

	if opts.FromPos > s.stats.BytesProcessed {
		s.stats.BytesProcessed = alignFloor(opts.FromPos, scanStride(opts.ForceMisalign))
	}

	return s, nil
}

// Close closes every per-UID output file the scanner opened.
func (s *Scanner) Close() error {
	var firstErr error
	for _, f := range s.outFor {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats reports the scanner's current progress.
func (s *Scanner) Stats() Stats { return s.stats }

func scanStride(forceMisalign bool) int64 {
	if forceMisalign {
		return 1
	}
	return int64(sbxspecs.ScanBlockSize)
}

func alignFloor(pos, stride int64) int64 {
	if stride <= 1 {
		return pos
	}
	return (pos / stride) * stride
}

// Run drives the scanner from its current position to the end of the
// stream (size total bytes, or opts.ToPos if that's smaller and nonzero),
// emitting confirmed blocks as it goes.
func (s *Scanner) Run(size int64) error {
	stride := scanStride(s.opts.ForceMisalign)

	if s.opts.ToPos > 0 && s.opts.ToPos < size {
		size = s.opts.ToPos
	}

	for s.stats.BytesProcessed+int64(sbxspecs.ScanBlockSize) <= size {
		pos := s.stats.BytesProcessed

		header := make([]byte, sbxspecs.HeaderSize)
		if _, err := s.src.ReadAt(header, pos); err != nil && err != io.EOF {
			return fmt.Errorf("rescue: reading header at %d: %w", pos, err)
		}

		cand, err := sbxblock.SyncFromBufferHeaderOnly(header)
		if err != nil {
			s.stats.BytesProcessed += stride
			continue
		}

		blockSize, err := sbxspecs.BlockSize(cand.Version)
		if err != nil {
			s.stats.BytesProcessed += stride
			continue
		}
		if pos+int64(blockSize) > size {
			s.stats.BytesProcessed += stride
			continue
		}

		full := make([]byte, blockSize)
		if _, err := s.src.ReadAt(full, pos); err != nil && err != io.EOF {
			return fmt.Errorf("rescue: reading block at %d: %w", pos, err)
		}

		blk, err := sbxblock.SyncFromBuffer(full, nil)
		if err != nil {
			// Confirm failed: advance from confirm-start + stride and
			// go back to scanning.
			s.stats.BytesProcessed = pos + stride
			continue
		}

		if s.opts.Filter.accepts(blk) {
			if err := s.emit(blk, full); err != nil {
				return err
			}
			if blk.Type() == sbxblock.BlockTypeMeta {
				s.stats.MetaCount++
			} else {
				s.stats.DataCount++
			}
		}

		s.stats.BytesProcessed = pos + int64(blockSize)

		if s.opts.Log != nil {
			if err := s.opts.Log.Save(s.stats); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scanner) emit(blk *sbxblock.Block, raw []byte) error {
	f, ok := s.outFor[blk.UID]
	if !ok {
		name := filepath.Join(s.opts.OutputDir, s.outputFileName(blk.UID))
		var err error
		f, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("rescue: opening output file for uid: %w", err)
		}
		s.outFor[blk.UID] = f
	}

	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("rescue: writing rescued block: %w", err)
	}
	return nil
}

// outputFileName picks the per-UID output file name: the plain, stable
// name when this run can be resumed (so a restarted run finds and appends
// to the same file a prior run started), or a session-scoped name
// otherwise, so two concurrent one-shot rescue runs into the same
// directory can't clobber each other.
func (s *Scanner) outputFileName(uid [sbxspecs.FileUIDLen]byte) string {
	if s.opts.Log != nil {
		return uidFilename(uid)
	}
	return fmt.Sprintf("%x.%s.sbx", uid, s.sessionID)
}

func uidFilename(uid [sbxspecs.FileUIDLen]byte) string {
	return fmt.Sprintf("%x.sbx", uid)
}

// Log persists rescue progress (bytes_processed, meta/data counts) in a
// simple key=value format so a killed rescue run can resume.
type Log struct {
	path string
}

// NewLog opens a log file at path for reading and writing.
func NewLog(path string) *Log { return &Log{path: path} }

// Load reads a previously persisted Stats, reporting false if no log file
// exists yet.
func (l *Log) Load() (Stats, bool) {
	f, err := os.Open(l.path)
	if err != nil {
		return Stats{}, false
	}
	defer f.Close()

	var st Stats
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := splitKeyValue(sc.Text())
		if !ok {
			continue
		}
		switch key {
		case "bytes_processed":
			st.BytesProcessed = val
		case "meta_blocks_processed":
			st.MetaCount = val
		case "data_blocks_processed":
			st.DataCount = val
		}
	}
	return st, true
}

func splitKeyValue(line string) (string, int64, bool) {
	key, valStr, found := strings.Cut(line, "=")
	if !found {
		return "", 0, false
	}
	var val int64
	if _, err := fmt.Sscanf(valStr, "%d", &val); err != nil {
		return "", 0, false
	}
	return key, val, true
}

// Save overwrites the log file with st, in `key=value` lines.
func (l *Log) Save(st Stats) error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("rescue: writing log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f,
		"bytes_processed=%d\nblocks_processed=%d\nmeta_blocks_processed=%d\ndata_blocks_processed=%d\n",
		st.BytesProcessed, st.BlocksProcessed(), st.MetaCount, st.DataCount)
	return err
}
