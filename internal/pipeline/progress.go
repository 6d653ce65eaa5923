package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	progressInterval = 5 * time.Second
	progressEvery    = 200
)

// Progress reports throughput for a loop of known length.
type Progress struct {
	total   int
	verbose bool
	start   time.Time
	last    time.Time
	now     func() time.Time
	log     *zap.Logger
}

// NewProgress starts a reporter for total items.
func NewProgress(log *zap.Logger, total int, verbose bool) *Progress {
	return newProgressAt(log, total, verbose, time.Now)
}

func newProgressAt(log *zap.Logger, total int, verbose bool, now func() time.Time) *Progress {
	t := now()
	return &Progress{total: total, verbose: verbose, start: t, last: t, now: now, log: log}
}

// Tick records that done items are finished and logs a progress line when
// verbose, every 200 items, on the last item, or 5s after the previous line.
// It reports whether a line was logged.
func (p *Progress) Tick(done int, title string) bool {
	now := p.now()
	if !p.verbose && now.Sub(p.last) < progressInterval && done%progressEvery != 0 && done != p.total {
		return false
	}
	p.last = now

	elapsed, rate, eta := p.Stats(done)
	p.log.Info(fmt.Sprintf("[%d/%d]", done, p.total),
		zap.Duration("elapsed", elapsed.Round(100*time.Millisecond)),
		zap.String("rate", fmt.Sprintf("%.2f rows/s", rate)),
		zap.String("eta", eta),
		zap.String("title", truncate(title, 30)),
	)
	return true
}

// Stats returns elapsed time, rows per second and a printable ETA. The ETA is
// "unknown" while the rate is zero.
func (p *Progress) Stats(done int) (time.Duration, float64, string) {
	elapsed := p.now().Sub(p.start)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(done) / secs
	}
	if rate <= 0 {
		return elapsed, 0, "unknown"
	}
	remaining := time.Duration(float64(p.total-done) / rate * float64(time.Second))
	return elapsed, rate, remaining.Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
