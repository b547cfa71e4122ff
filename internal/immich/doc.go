// Package immich is a thin client for the Immich REST API covering the
// operations the reconciliation engine needs: asset listing and search,
// duplicate checking, upload, delete, album membership, favorites, and
// stacks. Every call applies a per-request timeout and classifies failures
// as transient or permanent via sentinel errors.
package immich
