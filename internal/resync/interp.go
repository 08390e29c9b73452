package resync

// maxPendingRun bounds how many unknown samples a channel may hold back while
// waiting for the next known sample. Longer runs are held at the last known
// value instead of interpolated.
const maxPendingRun = 1 << 19

// channel carries one output channel's unreleased samples across windows.
// buf[:done] is final; buf[done:] is an unknown run waiting for a known
// sample to interpolate towards.
type channel struct {
	buf  []int16
	done int

	last     int16
	lastPos  int64
	haveLast bool
}

// push appends samples whose absolute position of buf[0] is base.
func (c *channel) push(samples []int16, known []bool, base int64) {
	start := len(c.buf)
	c.buf = append(c.buf, samples...)
	for k := range samples {
		if !known[k] {
			continue
		}
		at := start + k
		if c.done < at {
			c.fill(c.done, at, base, c.buf[at], base+int64(at))
		}
		c.last, c.lastPos, c.haveLast = c.buf[at], base+int64(at), true
		c.done = at + 1
	}
	if len(c.buf)-c.done > maxPendingRun {
		c.finish()
	}
}

// fill interpolates buf[from:to] towards next at nextPos. Before the first
// known sample it holds next.
func (c *channel) fill(from, to int, base int64, next int16, nextPos int64) {
	if !c.haveLast {
		for k := from; k < to; k++ {
			c.buf[k] = next
		}
		return
	}
	span := nextPos - c.lastPos
	delta := int64(next) - int64(c.last)
	for k := from; k < to; k++ {
		pos := base + int64(k)
		c.buf[k] = int16(int64(c.last) + roundDiv(delta*(pos-c.lastPos), span))
	}
}

// finish holds the last known sample over the trailing run, or writes
// silence when the channel never carried a known sample.
func (c *channel) finish() {
	var v int16
	if c.haveLast {
		v = c.last
	}
	for k := c.done; k < len(c.buf); k++ {
		c.buf[k] = v
	}
	c.done = len(c.buf)
}

// take removes the first n final samples.
func (c *channel) take(n int) []int16 {
	out := make([]int16, n)
	copy(out, c.buf[:n])
	c.buf = append(c.buf[:0], c.buf[n:]...)
	c.done -= n
	return out
}

func roundDiv(a, b int64) int64 {
	if a >= 0 {
		return (a + b/2) / b
	}
	return -((-a + b/2) / b)
}
