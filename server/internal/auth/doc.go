// Package auth provides API key authentication for the pilotwatch HTTP API.
//
// APIKey(mode, header, key) returns chi-compatible middleware that validates
// the key from the named request header. WebSocket clients, which cannot set
// headers from a browser, may pass the key as the api_key query parameter.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). A missing or incorrect key is
// rejected with 401 and a JSON error body.
package auth
