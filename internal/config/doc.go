// Package config handles configuration loading for fundgate.
//
// # Configuration File
//
// Location, in order:
//
//  1. The -config flag
//  2. Path from the FUNDGATE_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/fundgate/fundgate.yaml (~/.config when unset)
//
// A missing file is not an error: defaults apply. Files ending in .toml are
// decoded as TOML; anything else is YAML. Keys left out keep their defaults.
//
// # Environment Variables
//
// Values can reference the environment:
//
//	auth:
//	  jwt_secret: "${FUNDGATE_JWT_SECRET}"
//
// These variables override the file outright:
//
//	SERVER_PRIVATE_KEY      wallet.private_key
//	FUNDGATE_DB_PATH        database.path
//	FUNDGATE_REGISTRY_PATH  registry.path
//	FUNDGATE_HTTP_ADDR      server.http_addr
//	FUNDGATE_JWT_SECRET     auth.jwt_secret
//
// # Durations
//
// wallet.request_ttl and registry.lock_timeout use time.ParseDuration
// syntax ("24h", "5s").
package config
