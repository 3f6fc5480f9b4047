// Package job models one source clip awaiting a proxy encode.
//
// A Job is built from an editor ClipRecord, validated at construction, and
// carries the derived paths the rest of the pipeline needs: the mirrored
// output directory under the proxy root, a collision-free output path, the
// newest existing proxy that could be linked instead of re-encoding, and the
// input color range used to pick scaling levels.
package job
