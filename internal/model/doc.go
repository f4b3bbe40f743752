// Package model defines the data types shared by every fieldsync package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Quantities, weights and volumes are exact decimals, never floats
//   - Entity ids are generated on the device before the server sees them
//   - Aggregate counters are derived from children (see Recount)
//   - RequestRecord keeps its PascalCase wire shape for the journal
package model
