// Package remoteindex fetches the remote asset collection with its album,
// favorite, stack, and provenance metadata and builds the checksum and
// name+time lookup indices the matcher works from.
package remoteindex
