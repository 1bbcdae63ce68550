// Package client is the HTTP client for the Skaha session service,
// covering session lifecycle, logs, and cluster resource queries.
package client
