// Command rfbviewer is a headless demo of the client package: it connects
// to an RFB server, logs bell and clipboard events, and periodically dumps
// the current framebuffer as a PPM image to -outdir.
package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dalton-tools/rfbshadow/client"
)

var (
	addr       = flag.String("addr", "127.0.0.1:5900", "RFB server address to connect to.")
	shared     = flag.Bool("shared", true, "Whether to request a shared session.")
	profile    = flag.String("profile", "balanced", "Update pacing profile: performance, balanced, or quality.")
	password   = flag.String("password", "", "VNC authentication password, if the server requires one.")
	outDir     = flag.String("outdir", ".", "Directory to write periodic PPM snapshots to.")
	snapPeriod = flag.Duration("snapshot_interval", 2*time.Second, "How often to dump a PPM snapshot.")
	runFor     = flag.Duration("run_for", 0, "If nonzero, disconnect and exit after this long.")
)

func main() {
	flag.Parse()

	p, err := parseProfile(*profile)
	if err != nil {
		slog.Error("invalid profile", "error", err)
		os.Exit(1)
	}

	bridge := &demoBridge{log: slog.Default()}
	c := client.New(client.Config{
		Addr:    *addr,
		Shared:  *shared,
		Profile: p,
		Bridge:  bridge,
		GetPassword: func() (string, bool) {
			if *password == "" {
				return "", false
			}
			return *password, true
		},
	})

	if err := c.Connect(); err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	info := c.Info()
	slog.Info("connected", "name", info.Name, "width", info.Width, "height", info.Height)

	stop := make(chan struct{})
	if *runFor > 0 {
		go func() {
			time.Sleep(*runFor)
			close(stop)
		}()
	}

	ticker := time.NewTicker(*snapPeriod)
	defer ticker.Stop()
	n := 0
loop:
	for {
		select {
		case <-ticker.C:
			n++
			frame := c.BackBuffer().Snapshot()
			path := filepath.Join(*outDir, fmt.Sprintf("snapshot-%04d.ppm", n))
			if err := writePPM(path, frame); err != nil {
				slog.Warn("failed to write snapshot", "path", path, "error", err)
				continue
			}
			slog.Info("wrote snapshot", "path", path)
			if c.State() != client.Streaming {
				break loop
			}
		case <-stop:
			break loop
		}
	}

	if err := c.Disconnect(); err != nil {
		slog.Warn("disconnect did not complete cleanly", "error", err)
	}
}

func parseProfile(name string) (client.Profile, error) {
	switch name {
	case "performance":
		return client.Performance, nil
	case "balanced":
		return client.Balanced, nil
	case "quality":
		return client.Quality, nil
	default:
		return 0, fmt.Errorf("unknown profile %q", name)
	}
}

// demoBridge is a minimal client.UiBridge that logs everything instead of
// rendering to a window; no Presenter is used, so Present is never called,
// and main's snapshot loop pulls frames directly via BackBuffer().Snapshot().
type demoBridge struct {
	log *slog.Logger
}

func (b *demoBridge) Present(frame *image.RGBA) {}

func (b *demoBridge) OnBell() {
	b.log.Info("bell")
}

func (b *demoBridge) OnClipboard(text string) {
	b.log.Info("clipboard update", "text", text)
}

func (b *demoBridge) SessionEnded(cause error) {
	b.log.Info("session ended", "cause", cause)
}

// writePPM writes img as a binary PPM (P6), the simplest format that needs
// no external codec dependency for a headless demo dump.
func writePPM(path string, img *image.RGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bounds := img.Bounds()
	if _, err := fmt.Fprintf(f, "P6\n%d %d\n255\n", bounds.Dx(), bounds.Dy()); err != nil {
		return err
	}
	row := make([]byte, bounds.Dx()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			i := (x - bounds.Min.X) * 3
			row[i] = byte(r >> 8)
			row[i+1] = byte(g >> 8)
			row[i+2] = byte(bl >> 8)
		}
		if _, err := f.Write(row); err != nil {
			return err
		}
	}
	return nil
}
