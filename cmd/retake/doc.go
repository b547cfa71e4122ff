// Command retake reconciles a local photo export tree with an Immich
// server: it replaces lower-fidelity mobile uploads with the export
// copies, carries album and favorite state, and stacks edited variants
// over their originals.
package main
