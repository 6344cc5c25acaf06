/*
Package server composes the engine's HTTP surface with chi. Global routes
(health, readiness, metrics, queue stats) and every component's contributed
endpoints are mounted under the configured base path.

Every request gets a request id, a body size cap, and the caller identity
resolved by the auth provider; authenticated callers are reconciled into
the user store before the handler runs. Handler errors are rendered as the
structured error envelope with the status their kind maps to.
*/
package server
