package activity

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"streamkey-relay/work/errs"
	"streamkey-relay/work/jsonfile"
	"streamkey-relay/work/logger"
)

const (
	// DefaultRetention is how many attempts stay on disk.
	DefaultRetention = 100
	// DefaultRecent is how many attempts ReadRecent returns when n <= 0.
	DefaultRecent = 20
)

// TimeFormat is the ISO-8601 layout used for entry timestamps.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var log = logger.New("activity")

// Entry records one stream-start attempt.
type Entry struct {
	Account     string  `json:"account"`
	StreamTitle string  `json:"streamTitle"`
	Success     bool    `json:"success"`
	StatusCode  *int    `json:"statusCode"`
	Error       *string `json:"error"`
	RTMPFound   bool    `json:"rtmpFound"`
	Timestamp   string  `json:"timestamp"`
}

// File is the on-disk layout of the log.
type File struct {
	Streams     []Entry `json:"streams"`
	LastUpdated string  `json:"lastUpdated"`
}

// Recent is the result of ReadRecent.
type Recent struct {
	Entries     []Entry
	Total       int
	LastUpdated string
}

// Log is an append-only attempt log capped at a fixed number of entries.
type Log struct {
	path      string
	retention int
	now       func() time.Time

	// mu serializes read-modify-write cycles inside this process only.
	mu sync.Mutex
}

// New returns a Log stored at path that keeps the latest retention entries.
func New(path string, retention int) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		path:      path,
		retention: retention,
		now:       time.Now,
	}
}

// Path returns the backing file location.
func (l *Log) Path() string {
	return l.path
}

// Init creates an empty log file when none exists.
func (l *Log) Init() error {
	created, err := jsonfile.EnsureFile(l.path, &File{
		Streams:     []Entry{},
		LastUpdated: l.stamp(),
	})
	if err != nil {
		return errs.Wrapf(err, "initialize activity log")
	}
	if created {
		log.Info("{activity - Init} created default stream logs file: %s", l.path)
	}
	return nil
}

// Append stamps e with the current time, adds it to the tail and drops the
// oldest entries beyond the retention cap. A corrupt file is moved aside and
// replaced rather than blocking every later append.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.load()
	if err != nil {
		return errs.StoreUnavailable(err, "Failed to write stream logs")
	}

	e.Timestamp = l.stamp()
	f.Streams = append(f.Streams, e)
	if len(f.Streams) > l.retention {
		f.Streams = f.Streams[len(f.Streams)-l.retention:]
	}
	f.LastUpdated = e.Timestamp

	if err := jsonfile.Write(l.path, f); err != nil {
		return errs.StoreUnavailable(err, "Failed to write stream logs")
	}
	return nil
}

// ReadRecent returns the latest n entries newest first, together with the
// number of entries currently retained.
func (l *Log) ReadRecent(n int) (*Recent, error) {
	if n <= 0 {
		n = DefaultRecent
	}

	var f File
	if err := jsonfile.Read(l.path, &f); err != nil {
		log.Error("{activity - ReadRecent} failed to read stream logs: %v", err)
		return nil, errs.StoreUnavailable(err, "Failed to read stream logs")
	}

	start := len(f.Streams) - n
	if start < 0 {
		start = 0
	}
	window := f.Streams[start:]

	entries := make([]Entry, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		entries = append(entries, window[i])
	}

	return &Recent{
		Entries:     entries,
		Total:       len(f.Streams),
		LastUpdated: f.LastUpdated,
	}, nil
}

func (l *Log) load() (*File, error) {
	var f File
	err := jsonfile.Read(l.path, &f)
	switch {
	case err == nil:
	case os.IsNotExist(errors.Cause(err)), errors.Is(err, jsonfile.ErrEmpty):
		f = File{}
	default:
		if !jsonfile.Exists(l.path) {
			return nil, err
		}
		backup, berr := jsonfile.Backup(l.path)
		if berr != nil {
			return nil, err
		}
		log.Warn("{activity - load} stream logs file was unreadable, copied to %s: %v", backup, err)
		f = File{}
	}

	if f.Streams == nil {
		f.Streams = []Entry{}
	}
	return &f, nil
}

func (l *Log) stamp() string {
	return l.now().UTC().Format(TimeFormat)
}
