package testhelpers

import "github.com/gin-gonic/gin"

// OK wraps data in the success envelope the live API sends on
// single-resource endpoints.
func OK(message string, data any) gin.H {
	return gin.H{"success": true, "message": message, "data": data}
}

// Paginated builds the mongoose-paginate style envelope list endpoints
// respond with. Docs may be nil for an empty page.
func Paginated(docs any, page, limit int, totalDocs int64) gin.H {
	if docs == nil {
		docs = []gin.H{}
	}
	totalPages := int64(1)
	if limit > 0 {
		totalPages = (totalDocs + int64(limit) - 1) / int64(limit)
	}
	if totalPages < 1 {
		totalPages = 1
	}
	return gin.H{
		"success":     true,
		"docs":        docs,
		"totalDocs":   totalDocs,
		"page":        page,
		"limit":       limit,
		"totalPages":  totalPages,
		"hasNextPage": int64(page) < totalPages,
		"hasPrevPage": page > 1,
	}
}
