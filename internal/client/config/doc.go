// Package config loads runtime configuration for the ticketdesk CLI.
//
// # Sources and precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. An optional .env file, loaded into the process environment.
//  3. An optional YAML config file (--config / -c).
//  4. TICKETDESK_* environment variables; "__" separates sections.
//  5. Command-line flags, passed in as Sources.Overrides.
//
// Later sources override earlier ones.
//
// # File schema
//
//	server_endpoint_addr: http://127.0.0.1:8000/api/
//	online_check_interval: 3s
//	request_timeout: 10s
//	database_path: ticketdesk.db
//	auth_scheme: Token
//	resend_cooldown: 60s
//	log:
//	  level: info        # debug|info|warn|error
//	  format: text       # text|json
//	  backend: slog      # slog|zap
//	breaker:
//	  max_failures: 5
//	  interval: 1m
//	  timeout: 30s
//
// The same keys in the environment: TICKETDESK_SERVER_ENDPOINT_ADDR,
// TICKETDESK_LOG__LEVEL, TICKETDESK_BREAKER__MAX_FAILURES and so on.
package config
