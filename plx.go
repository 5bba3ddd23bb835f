// Package plx provides indexed access to Plexon .plx recordings.
//
// The basic structure of a .plx file is:
//    - The fixed file header, including the advisory count tables.
//    - Spike, event and continuous channel descriptors.
//    - A single stream of variable-length data blocks (spike waveforms,
//      digital events and continuous samples) in timestamp order.
//
// Open parses the descriptor tables and scans the block stream once, building
// one frame index per channel type category. Queries resolve a time window
// and channel subset against that index and read only the overlapping byte
// ranges of the file; the file is never re-scanned. All reads after indexing
// are positioned, so one open recording is safe for concurrent queries.
package plx

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/plexio/plx/frame"
	"github.com/plexio/plx/internal/bufseekio"
	"github.com/plexio/plx/meta"
)

// Error taxonomy of the query API. Indexing failures (ErrMalformedHeader,
// ErrTruncatedFile) abort Open entirely; the query errors are returned
// per-call and leave the index untouched.
var (
	ErrMalformedHeader = meta.ErrMalformedHeader
	ErrUnknownChannel  = meta.ErrUnknownChannel
	ErrTruncatedFile   = frame.ErrTruncated

	ErrChannelNotFound = errors.New("plx: channel not found")
	ErrEmptyTimeRange  = errors.New("plx: empty time range")
	ErrOutOfRange      = errors.New("plx: time window outside indexed data")
	ErrNotContinuous   = errors.New("plx: not a continuous channel type")
	ErrNotDiscrete     = errors.New("plx: not a discrete channel type")
	ErrRateMismatch    = errors.New("plx: channel rates are not commensurate")
	ErrUnknownUnit     = errors.New("plx: unknown unit")
)

// GapFill selects the sentinel written to continuous output samples that no
// indexed frame covers (acquisition pauses and dropouts).
type GapFill int

const (
	// GapZero writes zero for uncovered samples. The default.
	GapZero GapFill = iota
	// GapNaN writes NaN for uncovered samples, making gaps distinguishable
	// from silent signal.
	GapNaN
)

// An Option configures an open recording.
type Option func(*File)

// WithGapFill sets the sentinel policy for acquisition gaps inside a
// continuous query window.
func WithGapFill(policy GapFill) Option {
	return func(f *File) { f.gapFill = policy }
}

// WithLogger sets the logger used for scan anomalies and consistency check
// reports. The default is the logrus standard logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *File) { f.logger = logger }
}

// WithScanBufferSize sets the read buffer size of the indexing scan.
func WithScanBufferSize(size int) Option {
	return func(f *File) { f.bufSize = size }
}

const defaultScanBufSize = 1 << 20

// A File is an open, indexed .plx recording. The descriptor tables and frame
// index are immutable after Open; queries only read them and issue positioned
// reads into the underlying source.
type File struct {
	path   string
	f      *os.File
	r      io.ReaderAt
	size   int64
	tables *meta.Tables
	index  *frame.Index

	gapFill GapFill
	logger  *log.Logger
	bufSize int
}

// Open opens and indexes the .plx recording at path. The whole data region is
// scanned once; the cost is linear in file size and no block data is retained
// in memory beyond the frame index.
func Open(path string, opts ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "plx: opening recording")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "plx: opening recording")
	}
	file, err := New(f, st.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	file.path = path
	file.f = f
	return file, nil
}

// New indexes a recording from an arbitrary positioned-read source of the
// given size. The caller retains ownership of r; Close is a no-op for files
// opened through New.
func New(r io.ReaderAt, size int64, opts ...Option) (*File, error) {
	file := &File{
		r:       r,
		size:    size,
		gapFill: GapZero,
		logger:  log.StandardLogger(),
		bufSize: defaultScanBufSize,
	}
	for _, opt := range opts {
		opt(file)
	}
	br := bufseekio.NewReadSeekerSize(io.NewSectionReader(r, 0, size), file.bufSize)
	tables, err := meta.Parse(br)
	if err != nil {
		return nil, err
	}
	index, err := frame.Scan(br, size, tables, file.logger)
	if err != nil {
		return nil, err
	}
	file.tables = tables
	file.index = index
	return file, nil
}

// Close releases the underlying file handle. Frames, ContInfo and SpikeInfo
// values derived from the recording become invalid.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

// Path returns the path the recording was opened from, if any.
func (f *File) Path() string { return f.path }

// Header returns the decoded file header.
func (f *File) Header() *meta.FileHeader { return f.tables.Header }

// Tables returns the descriptor tables of the recording.
func (f *File) Tables() *meta.Tables { return f.tables }

// Frames returns the frame set of the given category.
func (f *File) Frames(typ frame.Type) *frame.Set { return f.index.Set(typ) }

// Anomalies returns the counts of scan-time anomalies: blocks whose
// timestamp regressed, and blocks that could not be classified.
func (f *File) Anomalies() (nonMonotonic, unclassified int) {
	return f.index.NonMonotonic, f.index.Unclassified
}

// A CategorySummary compares the indexed content of one category against the
// advisory counts declared by the file header.
type CategorySummary struct {
	Type frame.Type
	// Number of frames in the category's index.
	Frames int
	// Samples (continuous) or occurrences (discrete) found by the scan.
	Indexed uint64
	// Counts declared by the header tables. Advisory: the tables only cover
	// the first 128 spike channels, 4 units and 212 continuous channels.
	Declared uint64
}

// Summary reports the indexed versus declared counts of every category.
func (f *File) Summary() []CategorySummary {
	out := make([]CategorySummary, 0, frame.NumTypes)
	for t := frame.Spike; int(t) < frame.NumTypes; t++ {
		set := f.index.Set(t)
		s := CategorySummary{
			Type:    t,
			Frames:  set.Len(),
			Indexed: set.Samples(),
		}
		switch t {
		case frame.Spike:
			s.Declared = f.tables.Header.DeclaredSpikeCount()
		case frame.Event:
			s.Declared = f.tables.Header.DeclaredEventCount()
		default:
			for _, ch := range f.tables.SlowChannels {
				if frame.SlowType(ch.Name) == t {
					s.Declared += f.tables.Header.DeclaredSlowCount(ch.Channel)
				}
			}
		}
		out = append(out, s)
	}
	return out
}

// tick converts seconds to ticks of the timestamp clock.
func (f *File) tick(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(seconds*float64(f.tables.Header.ADFrequency) + 0.5)
}

// seconds converts ticks of the timestamp clock to seconds.
func (f *File) seconds(tick uint64) float64 {
	return float64(tick) / float64(f.tables.Header.ADFrequency)
}

// ticksFor converts a sample count at the given channel rate into ticks,
// rounded to the clock's integer resolution.
func (f *File) ticksFor(rate int, samples uint64) uint64 {
	adfreq := f.tables.Header.ADFrequency
	if adfreq%rate == 0 {
		return samples * uint64(adfreq/rate)
	}
	return uint64(float64(samples)*float64(adfreq)/float64(rate) + 0.5)
}

// readAt wraps positioned reads with the byte range that failed, so callers
// can report or retry partial reads.
func (f *File) readAt(buf []byte, off int64) error {
	if _, err := f.r.ReadAt(buf, off); err != nil {
		return errors.Wrapf(err, "plx: reading %d bytes at offset %d", len(buf), off)
	}
	return nil
}
