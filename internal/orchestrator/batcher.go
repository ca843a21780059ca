package orchestrator

import "time"

// deltaBatcher accumulates streamed content and hands the full value to apply
// at most once per interval. Flush must be called when the stream ends.
// Not safe for concurrent use.
type deltaBatcher struct {
	interval time.Duration
	apply    func(content string)
	now      func() time.Time

	content string
	dirty   bool
	last    time.Time
}

func newDeltaBatcher(interval time.Duration, apply func(string)) *deltaBatcher {
	return &deltaBatcher{interval: interval, apply: apply, now: time.Now}
}

func (b *deltaBatcher) Append(delta string) {
	if delta == "" {
		return
	}
	b.content += delta
	b.dirty = true
	b.maybeFlush()
}

func (b *deltaBatcher) Replace(content string) {
	if content == b.content {
		return
	}
	b.content = content
	b.dirty = true
	b.maybeFlush()
}

func (b *deltaBatcher) Content() string {
	return b.content
}

func (b *deltaBatcher) Flush() {
	if !b.dirty {
		return
	}
	b.dirty = false
	b.last = b.now()
	b.apply(b.content)
}

func (b *deltaBatcher) maybeFlush() {
	if b.interval <= 0 || b.now().Sub(b.last) >= b.interval {
		b.Flush()
	}
}
