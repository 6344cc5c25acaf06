// Package auth identifies the caller of every HTTP request under one of
// three modes: trusted gateway headers, verified JWT bearer tokens, or a
// stable anonymous identity when authentication is disabled.
package auth
