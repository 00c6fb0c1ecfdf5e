// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package events carries live updates to the kitchen display, the staff
// dashboard and the guests at a table. Handlers publish after a write commits;
// WebSocket connections subscribe. With Redis configured, events cross API
// instances through Redis pub/sub; otherwise they stay in-process.
package events
