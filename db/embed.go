// Package db embeds the checkout schema.
package db

import _ "embed"

// Schema creates the orders and order_items tables. Every statement is
// idempotent, so it is safe to apply on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
