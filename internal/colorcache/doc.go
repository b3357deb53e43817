// Package colorcache remembers the palette found for each track for the
// lifetime of the process.
//
// An entry is created as a pending placeholder the moment a lookup starts,
// so a second notification for the same track does not start a second
// lookup. The placeholder is replaced by the resolved palette (or the
// sentinel palette) when the lookup finishes. Entries are never evicted or
// persisted.
//
// Keys are structured (artist, album) pairs. Two different pairs whose
// concatenations happen to match ("AB"+"C" and "A"+"BC") stay distinct.
package colorcache
