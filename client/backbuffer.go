package client

import (
	"image"
	"sync"
)

// BackBuffer is the owned RGB image mirroring the server's framebuffer. The
// receive worker is its sole writer; the presenter is its sole reader. A
// single mutex guards the whole buffer, chosen over a double-buffer with
// atomic swap because this client has one presenter at ~30fps, not a
// latency-critical render loop where copy cost would matter. The presenter
// never observes a partially written pixel row either way.
type BackBuffer struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewBackBuffer allocates a width x height buffer, initialized to opaque
// black.
func NewBackBuffer(width, height int) *BackBuffer {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return &BackBuffer{img: img}
}

func (b *BackBuffer) Bounds() image.Rectangle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.img.Bounds()
}

// WithWriteLock runs fn with exclusive access to the underlying image,
// for use by the decoder to apply one rectangle at a time.
func (b *BackBuffer) WithWriteLock(fn func(img *image.RGBA)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.img)
}

// Snapshot returns a copy of the current image for the presenter to render
// without holding the lock for the duration of a scale/draw operation.
func (b *BackBuffer) Snapshot() *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := image.NewRGBA(b.img.Bounds())
	copy(out.Pix, b.img.Pix)
	return out
}
