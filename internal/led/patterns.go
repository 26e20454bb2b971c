package led

import (
	"math"

	"github.com/micro-nova/amplipi-rfid/internal/hardware"
)

// Comet trail shape: each pixel behind the head keeps trailDecay of the
// previous one's intensity, never dropping below trailFloor.
const (
	trailLen   = 4
	trailDecay = 0.5
	trailFloor = 0.08
	sweepDim   = 0.25
)

// LitCount maps a remaining ratio onto the number of lit pixels.
func LitCount(size int, ratio float64) int {
	if size <= 0 || math.IsNaN(ratio) || ratio <= 0 {
		return 0
	}
	if ratio >= 1 {
		return size
	}
	return int(math.Round(float64(size) * ratio))
}

func fill(px []hardware.RGB, c hardware.RGB) {
	for i := range px {
		px[i] = c
	}
}

// progressFrame lights the first lit pixels.
func progressFrame(px []hardware.RGB, lit int, c hardware.RGB) {
	for i := range px {
		if i < lit {
			px[i] = c
		} else {
			px[i] = hardware.Off
		}
	}
}

// cometFrame draws a head at position head with a trail behind it,
// wrapping around the ring.
func cometFrame(px []hardware.RGB, head int, c hardware.RGB) {
	n := len(px)
	fill(px, hardware.Off)
	if n == 0 {
		return
	}
	head = ((head % n) + n) % n
	level := 1.0
	for d := 0; d <= trailLen && d < n; d++ {
		px[(head-d+n)%n] = c.Scale(level)
		level *= trailDecay
		if level < trailFloor {
			level = trailFloor
		}
	}
}

// bounce maps a step counter onto a position that walks 0..n-1 and back.
func bounce(step, n int) int {
	if n <= 1 {
		return 0
	}
	period := 2 * (n - 1)
	p := step % period
	if p < n {
		return p
	}
	return period - p
}

// sweepFrame dims the first lit pixels and highlights pos within them.
// With one pixel or fewer the frame is steady.
func sweepFrame(px []hardware.RGB, lit, pos int, c hardware.RGB) {
	progressFrame(px, lit, c.Scale(sweepDim))
	if lit <= 1 {
		if lit == 1 {
			px[0] = c
		}
		return
	}
	if pos >= 0 && pos < lit {
		px[pos] = c
	}
}
