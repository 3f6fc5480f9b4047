// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: stream properties including color range and frame rates
//   - Prober: binds a binary path and answers color-range queries
//
// Helper methods on Result resolve the first video stream, frame rate,
// frame count, and duration used when planning proxy encodes.
package ffprobe
