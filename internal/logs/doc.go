// Package logs reads the coordinator and worker log files for
// `proxyfarm logs`.
//
// Last returns the trailing lines of a file with bounded memory; Follow polls
// for appended lines until its context ends and restarts from the top when the
// file is truncated or rotated. Both honor a Filter so an operator can narrow
// a busy worker log to one batch, task, or clip.
package logs
