// Package service holds the logic handlers call into that is not part
// of the generated GraphQL API.
package service
