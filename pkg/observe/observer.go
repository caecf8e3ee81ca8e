// Package observe carries progress events from the pipeline to whatever front end is attached.
package observe

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Observer receives progress events. Implementations must be safe to call from the
// goroutine running a batch.
type Observer interface {
	LogLine(text string)
	QueueLengthChanged(n int)
	DownloadProgress(completed, total int)
	BatchReset()
}

// Nop discards every event
type Nop struct{}

func (Nop) LogLine(string)            {}
func (Nop) QueueLengthChanged(int)    {}
func (Nop) DownloadProgress(int, int) {}
func (Nop) BatchReset()               {}

// OrNop returns o, or Nop when o is nil
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// LogObserver forwards events to logrus
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver creates an observer writing to the given entry
func NewLogObserver(log *logrus.Entry) *LogObserver {
	return &LogObserver{log: log.WithField("component", "progress")}
}

func (o *LogObserver) LogLine(text string) { o.log.Info(text) }

func (o *LogObserver) QueueLengthChanged(n int) {
	o.log.WithField("queue_length", n).Debug("Queue length changed")
}

func (o *LogObserver) DownloadProgress(completed, total int) {
	o.log.WithFields(logrus.Fields{"completed": completed, "total": total}).Debug("Download progress")
}

func (o *LogObserver) BatchReset() { o.log.Debug("Reset tracking state") }

// Multi fans each event out to several observers in order
type Multi []Observer

func (m Multi) LogLine(text string) {
	for _, o := range m {
		o.LogLine(text)
	}
}

func (m Multi) QueueLengthChanged(n int) {
	for _, o := range m {
		o.QueueLengthChanged(n)
	}
}

func (m Multi) DownloadProgress(completed, total int) {
	for _, o := range m {
		o.DownloadProgress(completed, total)
	}
}

func (m Multi) BatchReset() {
	for _, o := range m {
		o.BatchReset()
	}
}

// Recorder keeps every event in memory. Used by tests and by callers that render later.
type Recorder struct {
	mu       sync.Mutex
	Lines    []string
	Lengths  []int
	Progress [][2]int
	Resets   int
}

func (r *Recorder) LogLine(text string) {
	r.mu.Lock()
	r.Lines = append(r.Lines, text)
	r.mu.Unlock()
}

func (r *Recorder) QueueLengthChanged(n int) {
	r.mu.Lock()
	r.Lengths = append(r.Lengths, n)
	r.mu.Unlock()
}

func (r *Recorder) DownloadProgress(completed, total int) {
	r.mu.Lock()
	r.Progress = append(r.Progress, [2]int{completed, total})
	r.mu.Unlock()
}

func (r *Recorder) BatchReset() {
	r.mu.Lock()
	r.Resets++
	r.mu.Unlock()
}

// Snapshot returns a copy of the recorded log lines
func (r *Recorder) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Lines))
	copy(out, r.Lines)
	return out
}
