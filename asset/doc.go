// Package asset defines the content-addressed units a node publishes to the
// exchange and computes their identities.
//
// An asset_id is sha256(canonical(asset without asset_id)), hex encoded.
// The same digest, wrapped as a CIDv1 (raw + sha2-256), addresses the
// asset body in local storage, so an asset_id and its CID always name the
// same bytes.
package asset
