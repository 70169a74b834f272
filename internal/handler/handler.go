// Package handler holds the HTTP endpoints around the GraphQL API: the
// endpoint itself, the GraphiQL page, the GitHub login flow and /status.
package handler
