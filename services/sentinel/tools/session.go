// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import "context"

// sessionKey is the context key type for the session ID.
type sessionKey struct{}

// WithSession binds a session ID to the context.
//
// Description:
//
//	The session a tool operates on is caller infrastructure, not model
//	input: it rides the context so the model can neither read nor spoof
//	another session's ID through tool parameters.
//
// Inputs:
//
//	ctx - Parent context.
//	sessionID - The session to bind.
//
// Outputs:
//
//	context.Context - Child context carrying the session ID.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext extracts the bound session ID.
//
// Outputs:
//
//	string - The session ID, empty when unbound.
//	bool - True if a session is bound.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}
