// Package config loads roomhub's YAML configuration.
//
// Load starts from Default, overlays the file (environment variables in the
// file are expanded first, so secrets can stay out of it) and validates the
// result. Unknown keys are rejected.
//
// Example file:
//
//	server:
//	  addr: ":8080"
//	  allowed_origins: ["https://app.example.com"]
//	hub:
//	  max_connections: 10000
//	  history_size: 100
//	  require_auth: true
//	  rate_limit:
//	    per_second: 20
//	    burst: 40
//	liveness:
//	  period: 30s
//	auth:
//	  mode: jwt
//	  jwt:
//	    secret: ${ROOMHUB_JWT_SECRET}
//	    issuer: roomhub
//	persistence:
//	  driver: redis
//	  redis:
//	    addr: localhost:6379
//	log:
//	  level: info
//	  format: json
package config
