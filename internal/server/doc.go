// Package server implements the HTTP API for the annotation service:
// the recording lifecycle, annotation CRUD, the selection cursor,
// transcript export, and monitoring endpoints with Prometheus metrics.
package server
