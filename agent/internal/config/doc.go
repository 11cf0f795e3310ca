// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full agent tree parsed from YAML
//   - AgentConfig: server_endpoint, collect_interval, ship_interval,
//     buffer_size, log_level, sources []
//   - Source: id, type (redfish|ipmi|prometheus), vendor, endpoint, host,
//     log_path, command/args, families, auth, tls, check_cert
//   - AuthConfig: mode (basic|bearer|apikey|none), username, password_env,
//     token_env, header, key_env; Password(), Token() and Key() resolve
//     secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (30s collect, 15s ship,
// 1000 buffer, info logging), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// each reload.
package config
