package stream

// replayEntry holds one published envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// replayBuffer is a fixed-size circular buffer of recent envelopes. It is
// not safe for concurrent use; the Hub guards it with its own lock.
type replayBuffer struct {
	buf  []replayEntry
	cap  int
	pos  int
	full bool
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity <= 0 {
		capacity = DefaultReplaySize
	}
	return &replayBuffer{buf: make([]replayEntry, capacity), cap: capacity}
}

// push appends an envelope, overwriting the oldest entry when full.
func (rb *replayBuffer) push(seq int64, data []byte) {
	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: data}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 {
		rb.full = true
	}
}

// since returns the entries with seq > after, oldest first.
func (rb *replayBuffer) since(after int64) []replayEntry {
	var out []replayEntry
	for i := 0; i < rb.len(); i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

func (rb *replayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical one.
func (rb *replayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
