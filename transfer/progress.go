package transfer

import "time"

// DefaultReportInterval is the minimum wall-clock spacing between
// intermediate progress reports.
const DefaultReportInterval = 500 * time.Millisecond

// Report is a progress snapshot delivered to the presentation layer.
// Percent is monotonically non-decreasing over a session and reaches
// exactly 100 at completion. Speed is instantaneous throughput in bytes
// per second. ETA is only meaningful when HasETA is true.
type Report struct {
	Percent float64
	Speed   float64
	ETA     time.Duration
	HasETA  bool
	Bytes   uint64
	Total   uint64
}

// ProgressFunc receives progress reports.
type ProgressFunc func(Report)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// progressTracker gates progress reporting to at most one intermediate
// report per interval of wall-clock progress, computing instantaneous
// speed over the bytes moved since the previous report.
type progressTracker struct {
	total     uint64
	bytes     uint64
	interval  time.Duration
	tp        TimeProvider
	callback  ProgressFunc
	lastTime  time.Time
	lastBytes uint64
}

func newProgressTracker(total uint64, interval time.Duration, tp TimeProvider, callback ProgressFunc) *progressTracker {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &progressTracker{
		total:    total,
		interval: interval,
		tp:       tp,
		callback: callback,
		lastTime: tp.Now(),
	}
}

// add records n more transferred bytes and emits an intermediate report
// if at least one interval has elapsed since the previous one.
func (p *progressTracker) add(n uint64) {
	p.bytes += n
	if p.callback == nil {
		return
	}

	elapsed := p.tp.Since(p.lastTime)
	if elapsed < p.interval {
		return
	}

	speed := float64(p.bytes-p.lastBytes) / elapsed.Seconds()
	report := Report{
		Percent: p.percent(),
		Speed:   speed,
		Bytes:   p.bytes,
		Total:   p.total,
	}
	if speed > 0 && p.total >= p.bytes {
		remaining := float64(p.total - p.bytes)
		report.ETA = time.Duration(remaining / speed * float64(time.Second))
		report.HasETA = true
	}

	p.lastTime = p.tp.Now()
	p.lastBytes = p.bytes
	p.callback(report)
}

// finish emits the final report: exactly 100 percent, zero speed, zero
// remaining time.
func (p *progressTracker) finish() {
	if p.callback == nil {
		return
	}
	p.callback(Report{
		Percent: 100,
		Speed:   0,
		ETA:     0,
		HasETA:  true,
		Bytes:   p.bytes,
		Total:   p.total,
	})
}

func (p *progressTracker) percent() float64 {
	if p.total == 0 {
		return 0
	}
	percent := float64(p.bytes) / float64(p.total) * 100
	if percent > 100 {
		percent = 100
	}
	return percent
}
