package main

import (
	"github.com/gin-gonic/gin"

	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

// CreateDocumentRequest represents the create document request
type CreateDocumentRequest struct {
	Title     string `json:"title" binding:"required,max=255"`
	SizeBytes int64  `json:"size_bytes" binding:"min=0"`
}

// ConsumeQuestionsRequest records answered questions against the monthly quota
type ConsumeQuestionsRequest struct {
	Count int64 `json:"count" binding:"required,min=1,max=1000"`
}

// handleCreateDocument stores a document once the quota gate has passed
func handleCreateDocument(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		var req CreateDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		oc, _ := middleware.GetOrganizationContext(c)
		creator := oc.UserID
		doc := &models.Document{
			OrganizationID: &id,
			CreatedByID:    &creator,
			Title:          req.Title,
			SizeBytes:      req.SizeBytes,
		}

		if err := app.Documents.Create(c.Request.Context(), doc); err != nil {
			writeStoreError(c, err, "Failed to create document")
			return
		}

		ev := auditEvent(c, id, tenancy.ActionDocumentCreated, map[string]interface{}{
			"title":      doc.Title,
			"size_bytes": doc.SizeBytes,
		})
		ev.Resource = "document"
		ev.ResourceID = doc.ID.String()
		record(app, c, ev)

		utils.CreatedResponse(c, "Document created successfully", doc)
	}
}

// handleConsumeQuestions charges answered questions to the monthly counter
func handleConsumeQuestions(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		var req ConsumeQuestionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		ctx := c.Request.Context()
		if err := app.Orgs.IncrementUsage(ctx, id, repository.UsageDelta{Questions: req.Count}); err != nil {
			writeStoreError(c, err, "Failed to record question usage")
			return
		}

		usage, err := app.Ledger.GetUsage(ctx, id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization usage")
			return
		}

		utils.OKResponse(c, "Question usage recorded", usage)
	}
}
