// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// sessionKey is the gin context key the session middleware stores the
// validated session ID under.
const sessionKey = "sentinel_session_id"

// RequireSessionID validates the :id path parameter as a UUID and stores
// it in the context.
//
// Description:
//
//	Sessions are created lazily on first use, so there is no existence
//	check here — but requiring UUID shape turns typo'd paths into 404s
//	instead of silently minting junk sessions.
func RequireSessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
				Error: "session id must be a UUID",
				Code:  "SESSION_NOT_FOUND",
			})
			return
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}
