package hardware

// keyLine accumulates keystrokes from a keyboard-wedge reader until Enter.
type keyLine struct {
	buf []byte
	max int
}

// key appends one key label. Labels longer than one character (shift, tab,
// ...) are ignored.
func (k *keyLine) key(label string) {
	if len(label) != 1 {
		return
	}
	if k.max > 0 && len(k.buf) >= k.max {
		return
	}
	k.buf = append(k.buf, label[0])
}

// enter returns the accumulated line and resets the buffer. ok is false
// for an empty line.
func (k *keyLine) enter() (line string, ok bool) {
	line = string(k.buf)
	k.buf = k.buf[:0]
	return line, line != ""
}
