// Package filter implements the parallel Laplacian edge-detection engine.
//
// The engine splits an image's rows into contiguous bands, one per worker:
//   - Partition computes the bands (the last band absorbs the remainder)
//   - each worker convolves every column of its rows with the 3x3 Laplacian
//     kernel, wrapping neighbor coordinates toroidally
//   - workers read the shared source and write disjoint rows of the result,
//     so no locking is needed on either buffer
//
// Worker start-up goes through a Launcher. A launcher may refuse a band (for
// example once shutdown has begun); refused bands are reported as
// *SpawnError values and their rows stay zero.
package filter
