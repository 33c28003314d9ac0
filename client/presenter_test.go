package client

import (
	"image"
	"testing"
)

func TestScaleFactorFixedModes(t *testing.T) {
	p := &Presenter{mode: Scale75}
	if got := p.scaleFactor(800, 600); got != 0.75 {
		t.Errorf("Scale75.scaleFactor = %v, want 0.75", got)
	}
	p.mode = Scale125
	if got := p.scaleFactor(800, 600); got != 1.25 {
		t.Errorf("Scale125.scaleFactor = %v, want 1.25", got)
	}
	p.mode = Scale100
	if got := p.scaleFactor(800, 600); got != 1.0 {
		t.Errorf("Scale100.scaleFactor = %v, want 1.0", got)
	}
}

func TestScaleFactorAutoNeverUpscales(t *testing.T) {
	p := &Presenter{mode: ScaleAuto, canvasW: 1920, canvasH: 1080}
	if got := p.scaleFactor(800, 600); got != 1.0 {
		t.Errorf("Auto.scaleFactor(800,600) with a larger canvas = %v, want 1.0 (never upscale)", got)
	}
}

func TestScaleFactorAutoDownscalesToSmallerCanvasDimension(t *testing.T) {
	p := &Presenter{mode: ScaleAuto, canvasW: 400, canvasH: 1000}
	got := p.scaleFactor(800, 600)
	want := 0.5 // min(400/800, 1000/600, 1.0) = min(0.5, 1.667, 1.0)
	if got != want {
		t.Errorf("Auto.scaleFactor(800,600) with canvas 400x1000 = %v, want %v", got, want)
	}
}

func TestRenderOncePassesThroughAtScale100(t *testing.T) {
	bb := NewBackBuffer(4, 4)
	bb.WithWriteLock(func(img *image.RGBA) {
		img.Set(1, 1, image.White.At(0, 0))
	})
	bridge := newTestBridge()
	p := NewPresenter(bb, bridge, Scale100, 4, 4)
	p.RenderOnce()

	select {
	case frame := <-bridge.presented:
		if frame.Bounds().Dx() != 4 || frame.Bounds().Dy() != 4 {
			t.Errorf("presented frame bounds = %v, want 4x4", frame.Bounds())
		}
	default:
		t.Fatalf("RenderOnce did not call Present")
	}
}
