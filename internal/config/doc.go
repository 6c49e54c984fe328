// Package config loads the autolpd configuration: a JSON file with every
// tunable of the orchestration engine, optional .env overrides for secrets
// and endpoints, and defaults for anything left blank.
package config
