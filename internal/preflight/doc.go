// Package preflight checks, before any work is queued or claimed, that the
// directories and binaries a role depends on are usable.
//
// The coordinator checks the proxy root, scratch and state directories and the
// clip manifest. A worker additionally checks ffmpeg, ffprobe and the
// configured encoders, so a misbuilt ffmpeg fails fast instead of failing
// every claimed task.
package preflight
