// Package merge combines several capture passes of the same tape into one
// best-effort frame stream.
//
// Each capture is a Source yielding raw frames tagged with a FrameIndex, either
// the position in the capture or the frame number derived from the subcode
// title timecode. The Engine groups frames by index, decodes and scores them in
// parallel batches, and picks every block independently from the candidates
// that hold it valid. Blocks no candidate holds valid stay unresolved and are
// handed to the repair stage.
package merge
