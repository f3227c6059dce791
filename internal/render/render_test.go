package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
)

type recordingRunner struct {
	calls  [][]string
	output []byte
	create string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.create != "" {
		_ = os.WriteFile(r.create, []byte("mp4"), 0o600)
	}
	return r.output, nil
}

func sampleVideo() domain.Video {
	return domain.Video{
		VideoID:      "abc",
		Title:        "Artist - Song (Official Video)",
		Channel:      &domain.Channel{Name: "Artist"},
		Views:        1250000,
		ViewGrowth:   domain.Int64Ptr(35000),
		Rank:         domain.IntPtr(3),
		RankDelta:    domain.RankDeltaPtr(domain.RankDeltaUp),
		PreviousRank: domain.IntPtr(5),
	}
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open overlay: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode overlay: %v", err)
	}
	return img
}

func TestRenderOverlayHorizontal(t *testing.T) {
	r, err := NewOverlayRenderer("", "", false)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	out := filepath.Join(t.TempDir(), "overlays", "abc.png")

	path, err := r.RenderOverlay(context.Background(), sampleVideo(), out)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	img := decodePNG(t, path)
	if img.Bounds().Dx() != 1920 || img.Bounds().Dy() != 1080 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	// background stays transparent
	if _, _, _, a := img.At(5, 5).RGBA(); a != 0 {
		t.Fatalf("expected transparent corner")
	}
	// the UP marker is filled blue
	if c := color.RGBAModel.Convert(img.At(335+38, 730+60)).(color.RGBA); c.B < 150 || c.R > 50 {
		t.Fatalf("expected blue delta marker, got %v", c)
	}
}

func TestRenderOverlayVertical(t *testing.T) {
	r, err := NewOverlayRenderer("", "", true)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	video := sampleVideo()
	video.RankDelta = nil
	video.PreviousRank = nil
	video.Channel = nil

	path, err := r.RenderOverlay(context.Background(), video, filepath.Join(t.TempDir(), "v.png"))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	img := decodePNG(t, path)
	if img.Bounds().Dx() != 1080 || img.Bounds().Dy() != 1920 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestRenderOverlayCancelled(t *testing.T) {
	r, _ := NewOverlayRenderer("", "", false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderOverlay(ctx, sampleVideo(), filepath.Join(t.TempDir(), "x.png")); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestThumbnailRender(t *testing.T) {
	tile := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for x := 0; x < 64; x++ {
		for y := 0; y < 36; y++ {
			tile.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		t.Fatalf("encode tile: %v", err)
	}

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	api := platform.NewAPIClient("thumbnails", server.Client(), zap.NewNop())
	r, err := NewThumbnailRenderer(api, "", "", zap.NewNop())
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	r.thumbnailURL = func(v domain.Video) string { return server.URL + "/" + v.VideoID + ".png" }

	videos := []domain.Video{{VideoID: "a"}, {VideoID: "b"}, {VideoID: "missing"}, {VideoID: "d"}, {VideoID: "e"}}
	out := filepath.Join(t.TempDir(), "thumb.jpg")
	day := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)

	if _, err := r.Render(context.Background(), videos, day, out); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if requests != 4 {
		t.Fatalf("expected 4 tile requests, got %d", requests)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil || format != "jpeg" {
		t.Fatalf("expected jpeg thumbnail, got %s (%v)", format, err)
	}
	if img.Bounds().Dx() != 1280 || img.Bounds().Dy() != 720 {
		t.Fatalf("unexpected thumbnail size %v", img.Bounds())
	}
	if r, _, _, _ := img.At(100, 100).RGBA(); r>>8 < 150 {
		t.Fatalf("expected first tile in the top left quadrant")
	}
}

func TestThumbnailRequiresVideos(t *testing.T) {
	r, _ := NewThumbnailRenderer(nil, "", "", zap.NewNop())
	if _, err := r.Render(context.Background(), nil, time.Now(), filepath.Join(t.TempDir(), "t.jpg")); err == nil {
		t.Fatalf("expected error without videos")
	}
}

func TestDownloaderArgs(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{create: filepath.Join(dir, "abc.mp4")}
	d := NewDownloader("yt-dlp", dir, zap.NewNop())
	d.runner = runner

	video := domain.Video{VideoID: "abc", DurationSeconds: 240}
	path, err := d.Download(context.Background(), video)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if path != filepath.Join(dir, "abc.mp4") {
		t.Fatalf("unexpected path %s", path)
	}

	args := strings.Join(runner.calls[0], " ")
	if !strings.Contains(args, "--download-sections *30-90") {
		t.Fatalf("long video should be cut: %s", args)
	}
	if !strings.HasSuffix(args, "https://www.youtube.com/watch?v=abc") {
		t.Fatalf("expected url last: %s", args)
	}

	// cached file skips the second download
	if _, err := d.Download(context.Background(), video); err != nil {
		t.Fatalf("second download failed: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected cached download, got %d calls", len(runner.calls))
	}

	short := d.args(domain.Video{VideoID: "s", DurationSeconds: 45})
	if strings.Contains(strings.Join(short, " "), "--download-sections") {
		t.Fatalf("shorts should be downloaded whole")
	}
}

func TestClipStart(t *testing.T) {
	if clipStart(30) != 0 || clipStart(49) != 0 {
		t.Fatalf("short sources start at 0")
	}
	if clipStart(60) != 30 || clipStart(201) != 100 {
		t.Fatalf("long sources start in the middle")
	}
}

func TestComposeClipArgs(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{}
	c := NewComposer("ffmpeg", dir, zap.NewNop())
	c.runner = runner

	job := ClipJob{
		VideoID:         "abc",
		SourcePath:      "src.mp4",
		OverlayPath:     "overlay.png",
		TemplatePath:    "frame.mp4",
		DurationSeconds: 200,
	}
	out, err := c.ComposeClip(context.Background(), job)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if out != filepath.Join(dir, "abc_format.mp4") {
		t.Fatalf("unexpected output %s", out)
	}

	args := strings.Join(runner.calls[0], " ")
	for _, part := range []string{"-ss 100", "-t 8", "-i src.mp4", "-i frame.mp4", "-i overlay.png", "colorkey=0x0000FF", "[framed][2:v]overlay", "-map [out]", "libx264"} {
		if !strings.Contains(args, part) {
			t.Fatalf("expected %q in %s", part, args)
		}
	}

	vertical := strings.Join(clipArgs(ClipJob{VideoID: "v", SourcePath: "s.mp4", OverlayPath: "o.png", Vertical: true}, "o.mp4"), " ")
	if !strings.Contains(vertical, "crop=1080:1920") || !strings.Contains(vertical, "[base][1:v]overlay") {
		t.Fatalf("unexpected vertical args %s", vertical)
	}
}

func TestConcatArgs(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{output: []byte("5.0\n")}
	c := NewComposer("/usr/bin/ffmpeg", dir, zap.NewNop())
	c.runner = runner

	out := filepath.Join(dir, "final.mp4")
	if _, err := c.Concat(context.Background(), []string{"c1.mp4", "c2.mp4"}, "start.mp4", "", out); err != nil {
		t.Fatalf("concat failed: %v", err)
	}

	if runner.calls[0][0] != "/usr/bin/ffprobe" {
		t.Fatalf("expected ffprobe for the start screen, got %s", runner.calls[0][0])
	}
	args := strings.Join(runner.calls[1], " ")
	// start screen 5s, clips 8s, 1s fades: offsets 4 and 11
	for _, part := range []string{"-i start.mp4 -i c1.mp4 -i c2.mp4", "offset=4[v1]", "offset=11[v2]", "-map [v2] -map [a2]"} {
		if !strings.Contains(args, part) {
			t.Fatalf("expected %q in %s", part, args)
		}
	}
}
