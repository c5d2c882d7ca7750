// Package api exposes the SeiFlow REST interface: synchronous intent parsing,
// asynchronous parse jobs, Sei network reads and forwarded transfers, plus
// health and Prometheus endpoints.
package api
