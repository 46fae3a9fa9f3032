// Package pipeline runs the Laplacian filter over a list of input files.
//
// A Processor handles one image end to end (decode, filter, encode) and
// never fails its siblings. A Driver fans the inputs out to goroutines,
// joins them and produces a Report whose TotalElapsed is the sum of every
// filter pass.
package pipeline
