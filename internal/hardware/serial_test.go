package hardware

import "testing"

func frame(body string) []byte {
	return append(append([]byte{stx}, body...), etx)
}

func TestNextFrame(t *testing.T) {
	buf := append([]byte("noise"), frame("0F00A1B2C3DF")...)
	id, rest, ok := nextFrame(buf)
	if !ok {
		t.Fatal("nextFrame() ok = false")
	}
	if id != 0x00A1B2C3 {
		t.Errorf("nextFrame() id = %d, want %d", id, 0x00A1B2C3)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %q, want empty", rest)
	}
}

func TestNextFrame_SkipsBadChecksum(t *testing.T) {
	buf := append(frame("0F00A1B2C300"), frame("0F00A1B2C3DF")...)
	id, _, ok := nextFrame(buf)
	if !ok || id != 0x00A1B2C3 {
		t.Errorf("nextFrame() = %d, %v; want second frame", id, ok)
	}
}

func TestNextFrame_Incomplete(t *testing.T) {
	buf := []byte{stx, '0', 'F', '0'}
	_, rest, ok := nextFrame(buf)
	if ok {
		t.Fatal("nextFrame() ok = true for partial frame")
	}
	if len(rest) != len(buf) {
		t.Errorf("partial frame should be kept, rest = %q", rest)
	}
}

func TestKeyLine(t *testing.T) {
	k := keyLine{max: 4}
	for _, l := range []string{"1", "2", "LEFTSHIFT", "3", "4", "5"} {
		k.key(l)
	}
	line, ok := k.enter()
	if !ok || line != "1234" {
		t.Errorf("enter() = %q, %v; want 1234, true", line, ok)
	}
	if _, ok := k.enter(); ok {
		t.Error("enter() on empty buffer should report false")
	}
}
