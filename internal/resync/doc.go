// Package resync rebuilds an audio track whose length matches the video
// exactly.
//
// Consumer DV decks lock audio loosely to video, so the number of samples
// carried by each frame drifts around the nominal schedule. The Resynchronizer
// folds over repaired frames, trims or pads every frame's window to the count
// the schedule expects, and fills unknown samples by linear interpolation
// across window boundaries.
package resync
