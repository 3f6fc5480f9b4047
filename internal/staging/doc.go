// Package staging manages the scratch directory holding chunk segments.
//
// Each chunked clip gets one directory under paths.temp_dir. A successful
// stitch removes its directory; directories left by failed or aborted batches
// are reaped by CleanStale once they are older than the configured age.
package staging
