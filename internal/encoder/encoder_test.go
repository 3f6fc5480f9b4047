package encoder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"proxyfarm/internal/encoder"
	"proxyfarm/internal/fileutil"
	"proxyfarm/internal/services"
	"proxyfarm/internal/task"
	"proxyfarm/internal/testsupport"
)

func sampleTask(output string) task.EncodeTask {
	return task.EncodeTask{
		ID:         "t1",
		GroupID:    "g1",
		Kind:       task.KindEncode,
		RoutingKey: "1.2",
		SourceID:   "src-1",
		Settings: task.Settings{
			Codec:         "prores_ks",
			Profile:       "0",
			PixelFormat:   "yuv422p10le",
			Height:        720,
			AudioCodec:    "pcm_s16le",
			AudioChannels: 2,
			Extension:     ".mov",
		},
		Source: task.Source{
			Path:       "/media/day1/A001.mov",
			FileName:   "A001.mov",
			FPS:        25,
			Frames:     100,
			Duration:   4,
			InputLevel: "full",
		},
		OutputPath: output,
	}
}

func TestBuildArgsWholeFile(t *testing.T) {
	tk := sampleTask("/proxies/day1/A001.mov")
	tk.Source.HFlip = true
	tk.Source.VFlip = true

	args, err := encoder.BuildArgs(tk, "/proxies/day1/.A001.partial.mov")
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	got := strings.Join(args, " ")
	want := "-hide_banner -y -i /media/day1/A001.mov -map 0:v:0 -map 0:a? -c:v prores_ks -profile:v 0 " +
		"-vf scale=-2:720:in_range=full:out_range=limited,hflip,vflip -pix_fmt yuv422p10le -c:a pcm_s16le -ac 2 " +
		"-progress pipe:1 -nostats /proxies/day1/.A001.partial.mov"
	if got != want {
		t.Fatalf("unexpected args\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildArgsChunkSeeksInput(t *testing.T) {
	tk := sampleTask("/tmp/seg/A001_2.mov")
	tk.Kind = task.KindChunk
	tk.Source.InputLevel = ""
	tk.Range = &task.Range{Sequence: 2, StartFrame: 50, EndFrame: 100, In: "00:00:02.000", Out: "00:00:04.000"}

	args, err := encoder.BuildArgs(tk, tk.OutputPath)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	got := strings.Join(args, " ")
	if !strings.HasPrefix(got, "-hide_banner -y -ss 00:00:02.000 -to 00:00:04.000 -i /media/day1/A001.mov") {
		t.Fatalf("expected input seek before -i, got %s", got)
	}
	if !strings.Contains(got, "in_range=limited") {
		t.Fatalf("expected unknown level to encode as limited, got %s", got)
	}
}

func TestBuildArgsRejectsStitch(t *testing.T) {
	tk := sampleTask("/proxies/A001.mov")
	tk.Kind = task.KindStitch
	tk.Segments = []string{"/tmp/a_1.mov"}
	if _, err := encoder.BuildArgs(tk, tk.OutputPath); !errors.Is(err, task.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=25",
		"out_time_us=1000000",
		"speed=2.0x",
		"progress=continue",
		"frame=50",
		"out_time_us=N/A",
		"progress=continue",
		"frame=100",
		"progress=end",
	}, "\n")

	var ticks []encoder.Tick
	if err := encoder.ParseProgress(strings.NewReader(input), 4*time.Second, 100, func(tk encoder.Tick) {
		ticks = append(ticks, tk)
	}); err != nil {
		t.Fatalf("ParseProgress: %v", err)
	}
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	if ticks[0].Percent != 25 || ticks[0].Speed != 2 {
		t.Fatalf("unexpected first tick %+v", ticks[0])
	}
	if ticks[1].Percent != 25 {
		t.Fatalf("expected N/A time to keep last known time, got %+v", ticks[1])
	}
	if !ticks[2].Done || ticks[2].Percent != 100 {
		t.Fatalf("expected final tick at 100%%, got %+v", ticks[2])
	}
}

func TestParseProgressFallsBackToFrames(t *testing.T) {
	var last encoder.Tick
	_ = encoder.ParseProgress(strings.NewReader("frame=30\nout_time_us=N/A\nprogress=continue\n"), 0, 60, func(tk encoder.Tick) {
		last = tk
	})
	if last.Percent != 50 {
		t.Fatalf("expected frame-based 50%%, got %+v", last)
	}
}

func TestEncodeMovesOutputIntoPlace(t *testing.T) {
	script := `for last; do :; done
echo proxy > "$last"
printf 'frame=50\nout_time_us=2000000\nprogress=continue\nframe=100\nprogress=end\n'
`
	cfg := testsupport.NewConfig(t, testsupport.WithScript("ffmpeg", script))
	output := filepath.Join(cfg.Paths.ProxyRoot, "day1", "A001.mov")

	var percents []float64
	enc := encoder.New(cfg.FFmpegBinary(), nil)
	if err := enc.Encode(context.Background(), sampleTask(output), func(tk encoder.Tick) {
		percents = append(percents, tk.Percent)
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !fileutil.Exists(output) {
		t.Fatalf("expected output at %s", output)
	}
	if fileutil.Exists(fileutil.PartialPath(output)) {
		t.Fatal("expected partial file to be renamed away")
	}
	if len(percents) != 2 || percents[0] != 50 || percents[1] != 100 {
		t.Fatalf("unexpected progress %v", percents)
	}
}

func TestEncodeFailureRemovesPartial(t *testing.T) {
	script := `for last; do :; done
echo partial > "$last"
echo "Invalid data found when processing input" >&2
exit 1
`
	cfg := testsupport.NewConfig(t, testsupport.WithScript("ffmpeg", script))
	output := filepath.Join(cfg.Paths.ProxyRoot, "A001.mov")

	err := encoder.New("ffmpeg", nil).Encode(context.Background(), sampleTask(output), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if _, statErr := os.Stat(fileutil.PartialPath(output)); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial removed, stat err %v", statErr)
	}
	if fileutil.Exists(output) {
		t.Fatal("expected no output after failure")
	}
}
