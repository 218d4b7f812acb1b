// Package ir defines the fact model shared by every other greynet package.
//
// This package contains the closed set of fact records, their identities,
// the schema registry used at network-construction time, boundary validation,
// and canonical JSON hashing for dataset fingerprints. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - money and weights are apd decimals
//   - Facts are immutable once they pass Prepare
//   - All JSON and YAML tags use snake_case
//   - Locations are NFC normalized at the ingestion boundary
package ir
