// Package catalog scans a desktop export tree and builds the local asset
// catalog: one record per media file with its checksum, sidecar capture
// timestamp, variant kind, and base identity key.
package catalog
