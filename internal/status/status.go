package status

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseChecking    Phase = "checking"
	PhaseDownloading Phase = "downloading"
	PhaseInstalling  Phase = "installing"
	PhaseUpToDate    Phase = "up-to-date"
	PhaseManual      Phase = "manual"
	PhaseError       Phase = "error"
)

// Status is the record pushed to the launcher UI on every state change.
type Status struct {
	Text          string `json:"text"`
	Phase         Phase  `json:"phase,omitempty"`
	Progress      *int   `json:"progress"`
	Indeterminate bool   `json:"indeterminate"`
	ShowProgress  bool   `json:"showProgress"`
}

// Reporter receives status updates. A nil Reporter drops them.
type Reporter func(Status)

func (r Reporter) Report(s Status) {
	if r != nil {
		r(s)
	}
}

// Tee fans one update out to several reporters in order.
func Tee(reporters ...Reporter) Reporter {
	return func(s Status) {
		for _, r := range reporters {
			r.Report(s)
		}
	}
}

func Percent(v int) *int {
	return &v
}

// Hidden is a status without a progress bar.
func Hidden(phase Phase, text string) Status {
	return Status{Text: text, Phase: phase}
}

// ProgressThrottle decides which download percentages are worth a UI update:
// only moves of at least two points, and always 100.
type ProgressThrottle struct {
	mu   sync.Mutex
	last int
}

func NewProgressThrottle() *ProgressThrottle {
	return &ProgressThrottle{last: -1}
}

// Percent converts a ratio into a clamped percentage and reports whether it
// should be emitted.
func (t *ProgressThrottle) Percent(ratio float64) (int, bool) {
	pct := int(ratio*100 + 0.5)
	if ratio != ratio {
		pct = 0
	}
	pct = min(max(pct, 0), 100)

	t.mu.Lock()
	defer t.mu.Unlock()
	if pct == t.last {
		return pct, false
	}
	if pct < 100 && pct-t.last < 2 {
		return pct, false
	}
	t.last = pct
	return pct, true
}

// Record is a status together with the time it was reported.
type Record struct {
	At     time.Time `json:"at"`
	Status Status    `json:"status"`
}

const historyLimit = 64

// Recorder keeps the most recent status updates for the status endpoint.
type Recorder struct {
	mu      sync.RWMutex
	now     func() time.Time
	history []Record
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) Reporter() Reporter {
	return r.Record
}

func (r *Recorder) Record(s Status) {
	if s.Progress != nil {
		s.Progress = Percent(*s.Progress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, Record{At: r.now().UTC(), Status: s})
	if over := len(r.history) - historyLimit; over > 0 {
		r.history = append(r.history[:0:0], r.history[over:]...)
	}
}

// Latest returns the last recorded status.
func (r *Recorder) Latest() (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.history) == 0 {
		return Record{}, false
	}
	return r.history[len(r.history)-1], true
}

func (r *Recorder) History() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.history))
	copy(out, r.history)
	return out
}
