// Package match pairs local export assets with their remote counterparts
// under uncertain signals: checksums differ when fidelity differs and
// timestamps differ by timezone correction, so pairing falls back from
// exact checksums to filename-and-capture-time proximity with an explicit
// ambiguous-needs-review outcome.
package match
