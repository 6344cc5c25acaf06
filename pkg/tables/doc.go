// Package tables implements the custom table manager component: CRUD
// endpoints over a record-store table whose column schema the host
// declares in the component configuration.
package tables
