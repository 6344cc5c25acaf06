// Package assets implements the assets manager component: HTTP endpoints
// for user-owned binary assets backed by one record-store table and the
// blob store, with an ownership gate on every mutation.
package assets
