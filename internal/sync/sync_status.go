package sync

import (
	"fmt"
	"io"
	gosync "sync"

	"github.com/dustin/go-humanize"
)

const statusEventBufferSize = 16

// ProgressObserver receives byte level upload progress. Implementations must not block.
type ProgressObserver interface {
	OnProgress(key string, sent, total int64)
}

// SyncStatus holds the latest human readable status line of a pass. Subscribers get
// every line that fits their buffer; older lines are dropped rather than blocking.
type SyncStatus struct {
	mu        gosync.RWMutex
	line      string
	eventSubs []chan string
}

func NewSyncStatus() *SyncStatus {
	return &SyncStatus{}
}

// Subscribe returns a channel of status lines
func (s *SyncStatus) Subscribe() <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, statusEventBufferSize)
	s.eventSubs = append(s.eventSubs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel
func (s *SyncStatus) Unsubscribe(ch <-chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.eventSubs {
		if sub == ch {
			close(sub)
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			break
		}
	}
}

// Set replaces the current line and broadcasts it.
func (s *SyncStatus) Set(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.line = line
	for _, sub := range s.eventSubs {
		select {
		case sub <- line:
		default:
			// subscriber is behind, it will catch up on the next line
		}
	}
}

func (s *SyncStatus) Setf(format string, args ...any) {
	s.Set(fmt.Sprintf(format, args...))
}

// Line returns the latest status line.
func (s *SyncStatus) Line() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.line
}

// OnProgress implements ProgressObserver.
func (s *SyncStatus) OnProgress(key string, sent, total int64) {
	s.Setf("Uploading %s %s/%s", key, humanize.IBytes(uint64(sent)), humanize.IBytes(uint64(total)))
}

// progressReader reports bytes read from r to an observer. Progress is the furthest
// offset reached, so bytes re-read after a rewind are not counted twice.
type progressReader struct {
	mu       gosync.Mutex
	r        io.Reader
	key      string
	pos      int64
	sent     int64
	total    int64
	observer ProgressObserver
}

// progressReadSeeker also exposes Seek and ReadAt of the wrapped body. The uploader
// reads such bodies in place instead of copying each one into a part buffer.
type progressReadSeeker struct {
	*progressReader
	rs io.ReadSeeker
	ra io.ReaderAt
}

func newProgressReader(r io.Reader, key string, total int64, observer ProgressObserver) io.Reader {
	if observer == nil {
		return r
	}
	p := &progressReader{r: r, key: key, total: total, observer: observer}

	rs, seekable := r.(io.ReadSeeker)
	ra, readerAt := r.(io.ReaderAt)
	if seekable && readerAt {
		return &progressReadSeeker{progressReader: p, rs: rs, ra: ra}
	}
	return p
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.pos += int64(n)
		p.report(p.pos)
		p.mu.Unlock()
	}
	return n, err
}

// report must be called with mu held.
func (p *progressReader) report(offset int64) {
	if offset <= p.sent {
		return
	}
	p.sent = offset
	p.observer.OnProgress(p.key, p.sent, p.total)
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.rs.Seek(offset, whence)
	if err == nil {
		p.mu.Lock()
		p.pos = pos
		p.mu.Unlock()
	}
	return pos, err
}

// ReadAt may be called concurrently for the parts of a multipart upload.
func (p *progressReadSeeker) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.ra.ReadAt(b, off)
	if n > 0 {
		p.mu.Lock()
		p.report(off + int64(n))
		p.mu.Unlock()
	}
	return n, err
}
