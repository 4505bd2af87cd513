// Package server implements the HTTP surface using the Echo framework.
//
// Routes: WebSocket upgrade per festival with route-determined channel
// filters, the internal broadcast API for event origination, health and
// Prometheus endpoints. Upgrade requests pass through connection limiting
// (global, per-IP, and per-IP rate) before a session is created.
package server
