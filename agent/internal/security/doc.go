// Package security checks the TLS certificate of https source endpoints.
// Check returns a types.CertStatus; Event turns an expired or expiring
// certificate into a log event so it contributes to the source's risk score.
package security
