package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/mmap-go"

	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/stellaneerr"
)

// RotationConfig tunes segment file lifecycle shared by disk-backed
// stores.
type RotationConfig struct {
	MaxFileSize      int64
	MaxFiles         int
	CompressOldFiles bool
	MaxFileAge       time.Duration
}

func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxFileSize: 64 << 20,
		MaxFiles:    32,
	}
}

type entryLoc struct {
	segment uint64
	offset  int
}

// mmapStore is the memory-mapped append-only segment backend: each
// segment is a pre-allocated file mapped RDWR, appended to sequentially,
// and periodically fdatasync'd. State transitions append a fresh record
// rather than rewriting in place, so a crash mid-write only ever loses
// the tail of the active segment — exactly the truncate-at-first-
// invalid-record recovery the wire format is designed for.
type mmapStore struct {
	dir string
	rot RotationConfig

	mu       sync.Mutex
	segments []uint64 // ascending, oldest first
	active   uint64
	file     *os.File
	region   mmap.MMap
	writeOff int

	roMu    sync.Mutex
	roCache map[uint64]mmap.MMap
	roFiles map[uint64]*os.File

	index map[string]entryLoc
}

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%020d.log", id))
}

// NewMmapStore opens (or creates) a segment directory, replaying every
// existing segment to rebuild the in-memory id->location index before
// returning.
func NewMmapStore(dir string, rot RotationConfig) (*mmapStore, error) {
	if rot.MaxFileSize <= 0 {
		rot = DefaultRotationConfig()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &mmapStore{
		dir:     dir,
		rot:     rot,
		roCache: make(map[uint64]mmap.MMap),
		roFiles: make(map[uint64]*os.File),
		index:   make(map[string]entryLoc),
	}

	existing, err := s.discoverSegments()
	if err != nil {
		return nil, err
	}
	s.segments = existing

	if len(s.segments) == 0 {
		if err := s.openNewSegment(1); err != nil {
			return nil, err
		}
	} else {
		s.active = s.segments[len(s.segments)-1]
		if err := s.replayAll(); err != nil {
			return nil, err
		}
		if err := s.openActiveForWrite(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *mmapStore) discoverSegments() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "segment-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, "segment-"), ".log")
		id, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *mmapStore) replayAll() error {
	for _, id := range s.segments {
		f, err := os.Open(segmentPath(s.dir, id))
		if err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		if info.Size() == 0 {
			f.Close()
			continue
		}
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return err
		}
		off := 0
		for {
			e, next, ok := DecodeRecordAt(m, off)
			if !ok {
				break
			}
			s.index[e.ID] = entryLoc{segment: id, offset: off}
			off = next
		}
		m.Unmap()
		f.Close()
	}
	return nil
}

func (s *mmapStore) openNewSegment(id uint64) error {
	path := segmentPath(s.dir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(s.rot.MaxFileSize); err != nil {
		f.Close()
		return err
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return err
	}
	s.file, s.region, s.active, s.writeOff = f, m, id, 0
	s.segments = append(s.segments, id)
	return nil
}

func (s *mmapStore) openActiveForWrite() error {
	path := segmentPath(s.dir, s.active)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if info.Size() < s.rot.MaxFileSize {
		if err := f.Truncate(s.rot.MaxFileSize); err != nil {
			f.Close()
			return err
		}
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return err
	}
	// writeOff resumes after the last valid record found during replay.
	off := 0
	for {
		_, next, ok := DecodeRecordAt(m, off)
		if !ok {
			break
		}
		off = next
	}
	s.file, s.region, s.writeOff = f, m, off
	return nil
}

func (s *mmapStore) appendLocked(e *Entry) error {
	rec, err := EncodeRecord(e)
	if err != nil {
		return err
	}
	if s.writeOff+len(rec) > len(s.region) {
		if err := s.rotateLocked(); err != nil {
			return err
		}
		if s.writeOff+len(rec) > len(s.region) {
			return stellaneerr.ErrJournalFull
		}
	}
	copy(s.region[s.writeOff:], rec)
	s.index[e.ID] = entryLoc{segment: s.active, offset: s.writeOff}
	s.writeOff += len(rec)
	return nil
}

func (s *mmapStore) Append(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e)
}

func (s *mmapStore) UpdateState(id string, state State, attempts uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	cur, err := s.readAtLocked(loc)
	if err != nil {
		return err
	}
	cur.State = state
	cur.Attempts = attempts
	return s.appendLocked(cur)
}

func (s *mmapStore) readAtLocked(loc entryLoc) (*Entry, error) {
	if loc.segment == s.active {
		e, _, ok := DecodeRecordAt(s.region, loc.offset)
		if !ok {
			return nil, stellaneerr.ErrJournalCorrupt
		}
		return e, nil
	}
	m, err := s.roMapLocked(loc.segment)
	if err != nil {
		return nil, err
	}
	e, _, ok := DecodeRecordAt(m, loc.offset)
	if !ok {
		return nil, stellaneerr.ErrJournalCorrupt
	}
	return e, nil
}

func (s *mmapStore) roMapLocked(id uint64) (mmap.MMap, error) {
	s.roMu.Lock()
	defer s.roMu.Unlock()
	if m, ok := s.roCache[id]; ok {
		return m, nil
	}
	f, err := os.Open(segmentPath(s.dir, id))
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.roFiles[id] = f
	s.roCache[id] = m
	return m, nil
}

func (s *mmapStore) Get(id string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.index[id]
	if !ok {
		return nil, false, nil
	}
	e, err := s.readAtLocked(loc)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (s *mmapStore) ScanRecoverable(fn func(*Entry) bool) error {
	s.mu.Lock()
	locs := make(map[string]entryLoc, len(s.index))
	for id, loc := range s.index {
		locs[id] = loc
	}
	s.mu.Unlock()

	for id, loc := range locs {
		s.mu.Lock()
		e, err := s.readAtLocked(loc)
		s.mu.Unlock()
		if err != nil {
			continue
		}
		if e.State == StateCompleted {
			continue
		}
		e.ID = id
		if !fn(e) {
			break
		}
	}
	return nil
}

func (s *mmapStore) rotateLocked() error {
	if err := s.file.Truncate(int64(s.writeOff)); err != nil {
		return err
	}
	if err := s.region.Flush(); err != nil {
		return err
	}
	if err := s.region.Unmap(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}

	next := s.active + 1
	if err := s.openNewSegment(next); err != nil {
		return err
	}

	if s.rot.MaxFiles > 0 && len(s.segments) > s.rot.MaxFiles {
		drop := s.segments[:len(s.segments)-s.rot.MaxFiles]
		s.segments = s.segments[len(s.segments)-s.rot.MaxFiles:]
		for _, id := range drop {
			s.closeROSegment(id)
			os.Remove(segmentPath(s.dir, id))
		}
	}
	return nil
}

func (s *mmapStore) closeROSegment(id uint64) {
	s.roMu.Lock()
	defer s.roMu.Unlock()
	if m, ok := s.roCache[id]; ok {
		m.Unmap()
		delete(s.roCache, id)
	}
	if f, ok := s.roFiles[id]; ok {
		f.Close()
		delete(s.roFiles, id)
	}
}

func (s *mmapStore) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

// Compact rewrites every closed segment, dropping Completed entries
// older than olderThan along with every superseded record (one that is
// no longer an entry's latest state). The active segment is left
// untouched — only rotated-away segments are ever rewritten.
func (s *mmapStore) Compact(olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithJournal("mmapstore")
	for _, id := range s.segments {
		if id == s.active {
			continue
		}
		if err := s.compactSegmentLocked(id, olderThan); err != nil {
			log.Warn().Uint64("segment", id).Err(err).Msg("segment compaction failed")
		}
	}
	return nil
}

func (s *mmapStore) compactSegmentLocked(id uint64, olderThan time.Time) error {
	path := segmentPath(s.dir, id)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if info.Size() == 0 {
		f.Close()
		return nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return err
	}

	tmpPath := path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		m.Unmap()
		f.Close()
		return err
	}

	off, writeOff := 0, 0
	newLocs := make(map[string]int)
	for {
		e, next, ok := DecodeRecordAt(m, off)
		if !ok {
			break
		}
		live, isLive := s.index[e.ID]
		if !isLive || live.segment != id || live.offset != off ||
			(e.State == StateCompleted && e.EnqueueTime.Before(olderThan)) {
			off = next
			continue
		}
		rec, encErr := EncodeRecord(e)
		if encErr == nil {
			tmp.WriteAt(rec, int64(writeOff))
			newLocs[e.ID] = writeOff
			writeOff += len(rec)
		}
		off = next
	}
	m.Unmap()
	f.Close()
	tmp.Truncate(int64(writeOff))
	tmp.Close()

	s.closeROSegment(id)
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	// Re-point or drop every index entry that lived in this segment: the
	// rewrite may have shifted surviving records' offsets and removed
	// discarded ones entirely.
	for existingID, loc := range s.index {
		if loc.segment != id {
			continue
		}
		if newOff, ok := newLocs[existingID]; ok {
			s.index[existingID] = entryLoc{segment: id, offset: newOff}
		} else {
			delete(s.index, existingID)
		}
	}
	return nil
}

func (s *mmapStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region.Flush()
}

func (s *mmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Truncate(int64(s.writeOff)); err != nil {
		return err
	}
	if err := s.region.Flush(); err != nil {
		return err
	}
	if err := s.region.Unmap(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}

	s.roMu.Lock()
	for id, m := range s.roCache {
		m.Unmap()
		s.roFiles[id].Close()
	}
	s.roMu.Unlock()
	return nil
}
