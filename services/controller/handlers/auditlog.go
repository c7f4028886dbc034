// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AureaControl/services/controller/audit"
)

// GetAuditTrail returns audit records. Query parameters:
//
//   - from, to: sequence range, inclusive. to=0 means newest.
//   - since, until: RFC 3339 time range, inclusive; overrides from/to.
//   - recent: newest N records; takes precedence over both ranges.
func GetAuditTrail(auditLog *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recentStr := c.Query("recent"); recentStr != "" {
			recent, err := strconv.Atoi(recentStr)
			if err != nil || recent < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "recent must be a positive integer"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"records": auditLog.Recent(recent)})
			return
		}

		if sinceStr, untilStr := c.Query("since"), c.Query("until"); sinceStr != "" || untilStr != "" {
			var since, until time.Time
			var err error
			if sinceStr != "" {
				if since, err = time.Parse(time.RFC3339, sinceStr); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
					return
				}
			}
			if untilStr != "" {
				if until, err = time.Parse(time.RFC3339, untilStr); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "until must be an RFC 3339 timestamp"})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"records": auditLog.RangeTime(since, until)})
			return
		}

		from, err := parseSeq(c.DefaultQuery("from", "1"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
			return
		}
		to, err := parseSeq(c.DefaultQuery("to", "0"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be a non-negative integer"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": auditLog.Range(from, to)})
	}
}

func parseSeq(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
