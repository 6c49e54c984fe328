// Package dex holds the minimal Uniswap-V2 style ABIs used by autolpd, typed
// reads over the router, factory, pairs and ERC20 tokens, builders for the
// state-changing calls, and unit conversions between decimal strings and
// scaled integers.
package dex
