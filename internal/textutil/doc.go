// Package textutil provides filename and label helpers shared by the job,
// stitch, and CLI packages.
//
// Names coming from network shares are frequently stored in decomposed
// Unicode form, so comparisons between a clip's file name and files found on
// disk go through NormalizeName before matching.
package textutil
