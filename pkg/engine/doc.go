/*
Package engine wires the framework together. An Engine is constructed over
a configuration, components are registered against it, and Start walks the
startup sequence: validate, migrate component tables additively, inject
the shared stores, start the HTTP server, and hand the component set to
the scheduler. Stop reverses the order, is idempotent, and is bounded by
the configured shutdown timeout.
*/
package engine
