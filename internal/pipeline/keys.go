package pipeline

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dunamismax/iopbridge/internal/media"
)

const KeyPrefix = "images"

// KeyClock hands out epoch-millisecond tokens that strictly increase, so two
// runs landing in the same millisecond still get distinct object keys.
type KeyClock struct {
	last atomic.Int64
	now  func() time.Time
}

func NewKeyClock(now func() time.Time) *KeyClock {
	if now == nil {
		now = time.Now
	}
	return &KeyClock{now: now}
}

func (c *KeyClock) Next() int64 {
	for {
		last := c.last.Load()
		next := c.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Keys are the two object keys written by one run.
type Keys struct {
	Raw       string
	Processed string
}

func NewKeys(variantID string, token int64, rawExt string) Keys {
	base := fmt.Sprintf("%s/%s_%d", KeyPrefix, sanitizePathToken(variantID), token)
	return Keys{
		Raw:       base + "_raw" + rawExt,
		Processed: base + "_processed" + media.WebPExtension,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
