// Package metadata edits the per-frame bookkeeping fields of a DV stream:
// title timecodes, block ID arbitrary bits and the track application ID.
//
// The workflow has three steps. Read extracts one Info per frame and can be
// saved as CSV for hand review. A Rules file then transforms the rows, with
// thresholds that stop a rule from silently rewriting most of a tape. Rewrite
// finally copies the stream and patches each frame whose row changed.
package metadata
