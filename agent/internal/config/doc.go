// Package config loads the relay agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{LogLevel, Agent}: full config tree parsed from YAML
//   - AgentConfig: server_url, buffer_size, send_timeout, sources [],
//     server_auth, tls
//   - Source: id, type (file|stdin), path, follow, poll_interval
//   - AuthConfig: mode (mtls|apikey|none), cert/key/ca files, header,
//     key_env; Key() resolves the API key from the environment
//
// Load(path) reads the YAML file, applies defaults (1000 buffer, 10s send
// timeout, 500ms poll), then validates required fields and enums.
package config
