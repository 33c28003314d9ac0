package client

import (
	"image"

	"github.com/nfnt/resize"
)

// ScaleMode is the presenter's display scale setting.
type ScaleMode int

const (
	Scale100 ScaleMode = iota
	Scale75
	Scale125
	ScaleAuto
)

// presenterFPS is the UI-thread sampling cadence for the presenter timer.
const presenterFPS = 30

// Presenter periodically samples a BackBuffer, scales it, and hands the
// result to a UiBridge. It skips the resample entirely when the effective
// scale is 1.0, handing the snapshot straight through.
type Presenter struct {
	backBuffer *BackBuffer
	bridge     UiBridge
	mode       ScaleMode
	canvasW    int
	canvasH    int
}

func NewPresenter(backBuffer *BackBuffer, bridge UiBridge, mode ScaleMode, canvasW, canvasH int) *Presenter {
	return &Presenter{backBuffer: backBuffer, bridge: bridge, mode: mode, canvasW: canvasW, canvasH: canvasH}
}

// scaleFactor computes the multiplier applied to the BackBuffer's native
// size, given its current bounds. Auto mode fits the canvas:
// min(canvas_w/width, canvas_h/height, 1.0), never upscaling.
func (p *Presenter) scaleFactor(width, height int) float64 {
	switch p.mode {
	case Scale75:
		return 0.75
	case Scale125:
		return 1.25
	case ScaleAuto:
		if width == 0 || height == 0 {
			return 1.0
		}
		scaleX := float64(p.canvasW) / float64(width)
		scaleY := float64(p.canvasH) / float64(height)
		scale := scaleX
		if scaleY < scale {
			scale = scaleY
		}
		if scale > 1.0 {
			scale = 1.0
		}
		return scale
	case Scale100:
		fallthrough
	default:
		return 1.0
	}
}

// RenderOnce samples the BackBuffer once, scales it per the current mode,
// and delivers it to the bridge. Called on a ~30fps timer by the embedding
// UI loop.
func (p *Presenter) RenderOnce() {
	snapshot := p.backBuffer.Snapshot()
	bounds := snapshot.Bounds()
	scale := p.scaleFactor(bounds.Dx(), bounds.Dy())

	if scale == 1.0 {
		p.bridge.Present(snapshot)
		return
	}

	scaledW := uint(float64(bounds.Dx()) * scale)
	scaledH := uint(float64(bounds.Dy()) * scale)
	resized := resize.Resize(scaledW, scaledH, snapshot, resize.Lanczos3)

	out := image.NewRGBA(resized.Bounds())
	for y := out.Bounds().Min.Y; y < out.Bounds().Max.Y; y++ {
		for x := out.Bounds().Min.X; x < out.Bounds().Max.X; x++ {
			out.Set(x, y, resized.At(x, y))
		}
	}
	p.bridge.Present(out)
}
