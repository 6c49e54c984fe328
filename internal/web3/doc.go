// Package web3 defines the chain gateway contract used by the orchestration
// engine, together with wallet signing helpers, call descriptions and the
// YAML chain definitions that name the router and wrapped native token of
// each network.
package web3
