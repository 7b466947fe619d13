package fs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"sync/atomic"
	"time"

	"github.com/aretw0/humus/pkg/core"
)

// SyncMode determines when appends are flushed to stable storage.
type SyncMode int

const (
	// SyncAlways fsyncs after every append; Append returns only once the
	// record is durable.
	SyncAlways SyncMode = iota
	// SyncNone leaves flushing to the OS. Faster, and a crash may lose the
	// most recent appends.
	SyncNone
)

// LogConfig configures an append-only log.
type LogConfig struct {
	SyncMode SyncMode
	ReadOnly bool
}

// Log is the append-only record file, the single source of truth of a
// store. Offsets are byte positions: each record starts exactly where the
// previous one ended.
//
// Appends are serialized through a single cursor; reads use pread and never
// take the cursor.
type Log struct {
	path   string
	file   *os.File
	config LogConfig

	cursor chan struct{}
	size   atomic.Int64  // end of the last committed record
	seq    atomic.Uint64 // last assigned logical timestamp
	closed atomic.Bool
}

// OpenLog opens or creates the log at path. The returned log has not been
// validated; callers replay it with Scan and discard a torn tail with
// Truncate.
func OpenLog(path string, config LogConfig) (*Log, error) {
	flag := os.O_RDWR | os.O_CREATE
	if config.ReadOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	l := &Log{
		path:   path,
		file:   file,
		config: config,
		cursor: make(chan struct{}, 1),
	}
	l.size.Store(info.Size())
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Size returns the offset just past the last committed record.
func (l *Log) Size() int64 { return l.size.Load() }

// LastSeq returns the logical timestamp of the last committed record.
func (l *Log) LastSeq() uint64 { return l.seq.Load() }

// observe advances the logical clock during replay.
func (l *Log) observe(seq uint64) {
	for {
		cur := l.seq.Load()
		if seq <= cur || l.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (l *Log) acquire(ctx context.Context) error {
	select {
	case l.cursor <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Log) release() { <-l.cursor }

// Append assigns the next logical timestamp to rec, writes it at the tail
// and, under SyncAlways, fsyncs before returning its offset.
//
// ctx is honored while waiting for the append cursor and up to the start of
// the write. Once the write begins the call runs to completion.
func (l *Log) Append(ctx context.Context, rec *Record) (int64, error) {
	if err := l.acquire(ctx); err != nil {
		return 0, err
	}
	defer l.release()

	if l.closed.Load() {
		return 0, core.ErrClosed
	}
	if l.config.ReadOnly {
		return 0, core.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rec.Seq = l.seq.Load() + 1
	if rec.Time == 0 {
		rec.Time = time.Now().UnixNano()
	}
	frame, err := rec.encode()
	if err != nil {
		return 0, err
	}

	offset := l.size.Load()
	if _, err := l.file.WriteAt(frame, offset); err != nil {
		_ = l.file.Truncate(offset)
		return 0, fmt.Errorf("failed to append record: %w", err)
	}
	if l.config.SyncMode == SyncAlways {
		if err := l.file.Sync(); err != nil {
			_ = l.file.Truncate(offset)
			return 0, fmt.Errorf("failed to sync log: %w", err)
		}
	}

	l.size.Store(offset + int64(len(frame)))
	l.seq.Store(rec.Seq)
	return offset, nil
}

// ReadAt reads the record starting at offset. Any integrity failure is
// reported as core.ErrCorruptRecord.
func (l *Log) ReadAt(offset int64) (Record, error) {
	if l.closed.Load() {
		return Record{}, core.ErrClosed
	}
	size := l.size.Load()
	if offset < 0 || offset+frameHeaderLen > size {
		return Record{}, fmt.Errorf("%w: offset %d out of range", core.ErrCorruptRecord, offset)
	}

	var hdr [frameHeaderLen]byte
	if _, err := l.file.ReadAt(hdr[:], offset); err != nil {
		return Record{}, fmt.Errorf("%w: offset %d: %v", core.ErrCorruptRecord, offset, err)
	}
	length, checksum, ok := parseHeader(hdr[:])
	if !ok {
		return Record{}, fmt.Errorf("%w: offset %d: bad frame header", core.ErrCorruptRecord, offset)
	}
	if offset+frameHeaderLen+int64(length) > size {
		return Record{}, fmt.Errorf("%w: offset %d: bad length %d", core.ErrCorruptRecord, offset, length)
	}

	payload := make([]byte, length)
	if _, err := l.file.ReadAt(payload, offset+frameHeaderLen); err != nil {
		return Record{}, fmt.Errorf("%w: offset %d: %v", core.ErrCorruptRecord, offset, err)
	}
	rec, err := decodePayload(payload, checksum)
	if err != nil {
		return Record{}, fmt.Errorf("offset %d: %w", offset, err)
	}
	return rec, nil
}

// Scan returns a scanner over the records from offset from up to the end
// of the log as of this call. Scanning the same range again yields the same
// records.
func (l *Log) Scan(from int64) *Scanner {
	limit := l.size.Load()
	s := &Scanner{next: from, limit: limit}
	if from < 0 || from > limit {
		s.err = fmt.Errorf("%w: scan offset %d outside log of %d bytes", core.ErrCorruptRecord, from, limit)
		return s
	}
	s.r = bufio.NewReaderSize(io.NewSectionReader(l.file, from, limit-from), 64*1024)
	return s
}

// Truncate discards everything from offset on. It is used to drop a torn
// tail during recovery.
func (l *Log) Truncate(offset int64) error {
	if l.config.ReadOnly {
		return core.ErrReadOnly
	}
	l.cursor <- struct{}{}
	defer l.release()

	if err := l.file.Truncate(offset); err != nil {
		return fmt.Errorf("failed to truncate log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}
	l.size.Store(offset)
	return nil
}

// Refresh re-reads the file size so records appended by another process
// become visible. The new range may end in a partially written record;
// Scan reports it as torn and it is picked up on a later refresh.
func (l *Log) Refresh() (int64, error) {
	info, err := l.file.Stat()
	if err != nil {
		return 0, err
	}
	l.size.Store(info.Size())
	return info.Size(), nil
}

// Sync flushes the log to stable storage.
func (l *Log) Sync() error {
	if l.config.ReadOnly {
		return nil
	}
	return l.file.Sync()
}

// Close waits for an in-flight append and closes the file.
func (l *Log) Close() error {
	l.cursor <- struct{}{}
	defer l.release()

	if l.closed.Swap(true) {
		return nil
	}
	if !l.config.ReadOnly {
		if err := l.file.Sync(); err != nil {
			l.file.Close()
			return err
		}
	}
	return l.file.Close()
}

// Scanner iterates over log records in order.
type Scanner struct {
	r      *bufio.Reader
	offset int64
	next   int64
	limit  int64
	rec    Record
	err    error
	torn   bool
}

// Next advances to the next record. It returns false at the end of the
// range, on a torn tail, or on corruption; see Torn and Err.
func (s *Scanner) Next() bool {
	if s.err != nil || s.torn || s.next >= s.limit {
		return false
	}

	// A crash can leave the file ending inside a header.
	if s.limit-s.next < frameHeaderLen {
		s.torn = true
		return false
	}

	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
		s.err = fmt.Errorf("%w: offset %d: %v", core.ErrCorruptRecord, s.next, err)
		return false
	}
	length, checksum, ok := parseHeader(hdr[:])
	if !ok {
		// Some filesystems extend the file with zeros before the data of an
		// interrupted append lands.
		if allZero(hdr[:]) && s.zerosToLimit() {
			s.torn = true
			return false
		}
		if s.err == nil {
			s.err = fmt.Errorf("%w: offset %d: bad frame header", core.ErrCorruptRecord, s.next)
		}
		return false
	}

	end := s.next + frameHeaderLen + int64(length)
	if end > s.limit {
		// The header made it to disk, the payload did not.
		s.torn = true
		return false
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		s.err = fmt.Errorf("%w: offset %d: %v", core.ErrCorruptRecord, s.next, err)
		return false
	}

	rec, err := decodePayload(payload, checksum)
	if err != nil {
		if end == s.limit {
			s.torn = true
			return false
		}
		s.err = fmt.Errorf("offset %d: %w", s.next, err)
		return false
	}

	s.offset = s.next
	s.next = end
	s.rec = rec
	return true
}

// zerosToLimit consumes the rest of the range and reports whether it is
// all zeros.
func (s *Scanner) zerosToLimit() bool {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.r.Read(buf)
		if !allZero(buf[:n]) {
			return false
		}
		if err == io.EOF {
			return true
		}
		if err != nil {
			s.err = fmt.Errorf("%w: offset %d: %v", core.ErrCorruptRecord, s.next, err)
			return false
		}
	}
}

// Record returns the current record.
func (s *Scanner) Record() Record { return s.rec }

// Offset returns the offset of the current record.
func (s *Scanner) Offset() int64 { return s.offset }

// End returns the offset just past the last good record.
func (s *Scanner) End() int64 { return s.next }

// Err returns the corruption error that stopped the scan, if any.
func (s *Scanner) Err() error { return s.err }

// Torn reports whether the scan stopped at a partially written record.
func (s *Scanner) Torn() bool { return s.torn }

// All adapts the scanner to a range-over-func iterator of
// (offset, record) pairs. Check Err and Torn afterwards.
func (s *Scanner) All() iter.Seq2[int64, Record] {
	return func(yield func(int64, Record) bool) {
		for s.Next() {
			if !yield(s.offset, s.rec) {
				return
			}
		}
	}
}
