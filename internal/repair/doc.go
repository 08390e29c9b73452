// Package repair conceals the blocks a merge left unresolved.
//
// Concealment runs as a sequential fold over merged frames in FrameIndex
// order. Audio and subcode blocks first borrow their redundant partner in the
// same frame; subcode, VAUX, and header blocks then borrow the same position
// from the nearest neighboring frame. Whatever remains is rewritten as a lost
// block with a regenerated block ID and reported as irrecoverable.
package repair
