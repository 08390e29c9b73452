// Package restore runs the end-to-end pipeline over a set of capture passes:
// merge, repair, write the repaired stream, resynchronize the audio and record
// the run in the journal.
//
// Run holds an exclusive lock on the output prefix for its whole lifetime so
// two invocations never write the same files. Outputs are written through
// temp files and renamed into place; a cancelled run still commits every frame
// it finished.
package restore
