/*
Package record implements the tabular record store shared by all components.

Every component owns one table named after the component, holding its record
rows plus variant-specific columns (asset fields, tileset upload fields, or
caller-declared custom columns). Tables are created at engine startup and
migrated additively: missing columns are added, nothing is ever dropped or
narrowed.

The store also owns the user triad (users, roles, user_roles), migrated with
goose from embedded SQL, and the per-request role reconciliation that runs
inside a single transaction.

Table and column names pass through a strict identifier gate before they are
interpolated into SQL; anything else fails loudly with a configuration error.
*/
package record
