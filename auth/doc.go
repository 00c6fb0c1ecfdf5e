// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identifiers, secrets and staff authentication.

# Table Codes

Table codes are what a table's QR sticker encodes:

	code := auth.GenerateTableCode(tableID, salt)

Codes are base62 encoded (alphanumeric only) HMACs of the table ID, so they
are deterministic from the ID and salt and need no lookup table to mint.

# Guest Tokens

Guest tokens are random 24-byte (192-bit) secrets:

	token, err := auth.GenerateGuestToken()

Tokens are URL-safe base64 encoded. A guest receives one on joining a table
and sends it as X-Guest-Token for the rest of the sitting.

# Staff

Staff passwords are stored as bcrypt hashes:

	hash, err := auth.HashPassword(password)
	err = auth.CheckPassword(hash, password)

Logging in issues an HS256 JWT carrying the staff ID, name and role:

	token, expiresAt, err := auth.IssueStaffToken(id, name, role, secret, ttl)
	claims, err := auth.ParseStaffToken(token, secret)

# ID Generation

Random hex IDs for database records:

	id, err := auth.GenerateID(16)  // 32 hex characters

# IP Hashing

For privacy-preserving abuse detection on joins:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
