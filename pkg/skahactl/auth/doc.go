// Package auth implements the OIDC device-authorization flow, lazy token
// refresh, and X.509 proxy-certificate credentials for the skahactl CLI.
package auth
