/*
Package tonicgrid contains the data model of a score laid out on a visual grid:
macrobeat groupings and their boundary styles, tonic and modulation markers,
and the notes, rhythmic stamps and triplets placed on the grid.

The subpackages turn a Score into the three coordinate spaces the rest of an
application works with. Package grid maps canvas columns to time bearing
columns and to pixels, package modulation warps the pixel space at modulation
markers, package timemap maps columns to playback seconds, package transport
schedules events against a transport clock and package playhead follows the
clock on screen. Package engine wires all of them together and owns the
shared state.
*/
package tonicgrid
