// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, remote) and completion (duration_ms).

# CORS Middleware

Enable cross-origin requests for the guest and staff apps:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

Allows methods GET, POST, PATCH, DELETE, OPTIONS with headers
Content-Type, Authorization, X-Guest-Token, X-Device-UUID.

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

Parse and validate request bodies in one step:

	var req models.PlaceOrderRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

Validation failures produce a 400 listing each failed field and rule.

# Staff Auth

RequireStaff checks the bearer token and optionally the role:

	kitchen := middleware.RequireStaff(secret, models.RoleKitchen)
	mux.HandleFunc("GET /kitchen/orders", kitchen(handler))

Admins pass every role check. Handlers read the caller with
StaffFromContext.

# Client IP Extraction

Get the original client IP (handles X-Forwarded-For, X-Real-IP):

	ip := middleware.GetClientIP(r)
*/
package middleware
