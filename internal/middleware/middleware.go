// Package middleware holds the echo middleware the installers mount:
// request ids, request scoped loggers, tracing, sessions, authentication,
// rate limiting and the global error handler.
package middleware
