/*
Package archive records generation runs in a SQLite database.

Every run stores its parameters and the generated sequence, one row per step
and instrument, so a batch can be inspected, exported or replayed as MIDI
long after the output files were overwritten. Models themselves are never
stored; they are rebuilt from the source material on every run.

Call SetupSchema once on a database before creating an Archive with New.
*/
package archive
