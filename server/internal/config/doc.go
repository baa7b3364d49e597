// Package config loads the server configuration from config.yaml.
//
// Sections:
//   - log_level       : debug | info | warn | error (default info)
//   - server          : http_port (8080), auth{mode, key_env, header},
//     cors{allowed_origins}, broadcast_interval (2s)
//   - mission         : countdown_tick (1s), store_ttl (24h)
//   - roster.pilots   : seed roster; the built-in four pilots when empty
//   - ingest          : per-pilot rate_per_second / burst for pushed samples
//   - alerts          : advisory rules over vitals and webhook targets
//   - recommendations : OpenAI-compatible provider, concurrency, retry, cache
//   - storage         : mission archive: none | sqlite | postgres
//   - nats            : url, subject_prefix, ingest subscription
//
// Secrets are never written in the file: *_env fields name the environment
// variable to read. LoadEnv pulls a .env file into the environment first.
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change so alert rules can be edited live.
package config
