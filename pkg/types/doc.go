/*
Package types defines the core data structures shared across twinforge.

It contains the domain model every other package builds on: records and
their asset/tileset extensions, users and identities, queue and component
enumerations, and the column specifications used by custom tables. Types
here are plain data with no behaviour beyond small helpers, so that the
record store, scheduler, and HTTP surface can exchange them freely.
*/
package types
