package encoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Tick is one progress report from ffmpeg's -progress output.
type Tick struct {
	Frame   int64
	OutTime time.Duration
	Speed   float64
	Percent float64
	Done    bool
}

// ParseProgress reads ffmpeg key=value progress blocks from r and calls
// onTick at the end of each block. Percent prefers elapsed output time and
// falls back to frame count when ffmpeg reports N/A for time.
func ParseProgress(r io.Reader, duration time.Duration, totalFrames int64, onTick func(Tick)) error {
	scanner := bufio.NewScanner(r)
	var current Tick
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			current.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "out_time_us", "out_time_ms":
			// ffmpeg reports microseconds under both keys.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us > 0 {
				current.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			if value != "N/A" {
				current.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
			}
		case "progress":
			current.Done = value == "end"
			current.Percent = percent(current, duration, totalFrames)
			if onTick != nil {
				onTick(current)
			}
		}
	}
	return scanner.Err()
}

func percent(t Tick, duration time.Duration, totalFrames int64) float64 {
	var p float64
	switch {
	case t.Done:
		p = 100
	case t.OutTime > 0 && duration > 0:
		p = float64(t.OutTime) / float64(duration) * 100
	case t.Frame > 0 && totalFrames > 0:
		p = float64(t.Frame) / float64(totalFrames) * 100
	}
	if p > 100 {
		p = 100
	}
	return p
}
