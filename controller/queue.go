package controller

// commandQueue pairs the lines waiting to be sent with the byte lengths of the lines sent and not
// yet acknowledged. It is owned by the streaming loop goroutine.
type commandQueue struct {
	pending  []string
	inFlight []int
}

func (q *commandQueue) push(line string) {
	q.pending = append(q.pending, line)
}

// head returns the next line to send and its length on the wire.
func (q *commandQueue) head() (string, int, bool) {
	if len(q.pending) == 0 {
		return "", 0, false
	}
	line := q.pending[0]
	return line, len(line) + 1, true
}

// markSent moves the head line to in flight.
func (q *commandQueue) markSent() {
	_, n, ok := q.head()
	if !ok {
		return
	}
	q.pending[0] = ""
	q.pending = q.pending[1:]
	q.inFlight = append(q.inFlight, n)
}

// acknowledge releases the oldest in flight line, returning its length.
func (q *commandQueue) acknowledge() (int, bool) {
	if len(q.inFlight) == 0 {
		return 0, false
	}
	n := q.inFlight[0]
	q.inFlight = q.inFlight[1:]
	return n, true
}

func (q *commandQueue) inFlightBytes() int {
	var sum int
	for _, n := range q.inFlight {
		sum += n
	}
	return sum
}

func (q *commandQueue) pendingLen() int {
	return len(q.pending)
}

// drop empties the queue, returning the lines that were never sent.
func (q *commandQueue) drop() []string {
	dropped := q.pending
	q.pending = nil
	q.inFlight = nil
	return dropped
}
