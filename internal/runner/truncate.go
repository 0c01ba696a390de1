package runner

import (
	"sync"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate bounds text to its last limit characters. Text longer than limit
// becomes "..." followed by the final limit characters; shorter text is
// returned verbatim.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return ellipsis + string(runes[len(runes)-limit:])
}

// tailBuffer keeps only the most recent bytes written to it so that a
// chatty process cannot grow memory without bound.
type tailBuffer struct {
	mu       sync.Mutex
	buf      []byte
	capacity int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{capacity: capacity}
}

// tailCapacity keeps enough bytes for max runes of any width plus one, so an
// overflowing buffer always truncates.
func tailCapacity(maxRunes int) int {
	return max(4*maxRunes+utf8.UTFMax, 64<<10)
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.capacity {
		b.buf = append(b.buf[:0], p[n-b.capacity:]...)
		return n, nil
	}
	if overflow := len(b.buf) + n - b.capacity; overflow > 0 {
		b.buf = append(b.buf[:0], b.buf[overflow:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
