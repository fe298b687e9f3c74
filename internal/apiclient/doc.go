// Package apiclient talks to the mixtape daemon's HTTP API on behalf of the
// CLI. It decodes response envelopes into typed values and turns failure
// envelopes into *APIError so callers can branch on the error kind.
package apiclient
