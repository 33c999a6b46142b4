/*
Package score holds the symbols the Cadence models operate on, single
instrument Events and multi-instrument JointStates, together with the
collaborators that move them in and out of files: a CSV event reader with
column validation, a per-instrument CSV stream writer and a MIDI renderer.
*/
package score
