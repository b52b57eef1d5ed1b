package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sonoscan/sonoscan/internal/datastore"
)

// FeedbackRequest is a reviewer's verdict on a prediction.
type FeedbackRequest struct {
	FeedbackType string `json:"feedback_type"`
	ActualLabel  string `json:"actual_label"`
	Notes        string `json:"notes"`
}

// FeedbackResponse is a stored feedback row.
type FeedbackResponse struct {
	ID           uint      `json:"id"`
	PredictionID uint      `json:"prediction_id"`
	FeedbackType string    `json:"feedback_type"`
	ActualLabel  string    `json:"actual_label,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	User         string    `json:"user,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// SubmitFeedback handles POST /api/v2/predictions/:id/feedback. Every submission is a new
// row; the newest one is what GetFeedback returns.
func (c *Controller) SubmitFeedback(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseIDParam(ctx)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}
	if _, err := c.visiblePrediction(ctx, id); err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load prediction")
	}

	var req FeedbackRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid feedback request", http.StatusBadRequest)
	}

	username := currentUser(ctx)
	fbID, err := c.DS.SubmitPredictionFeedback(reqCtx, datastore.FeedbackInput{
		PredictionID: id,
		FeedbackType: strings.ToLower(strings.TrimSpace(req.FeedbackType)),
		ActualLabel:  strings.TrimSpace(req.ActualLabel),
		Notes:        req.Notes,
		User:         username,
	})
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to store feedback")
	}
	c.invalidateAnalytics()

	var warnings []string
	warnings = appendWarning(warnings, c.logActivity(reqCtx, username, datastore.ActivityFeedback))

	fb, err := c.DS.GetPredictionFeedback(reqCtx, id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to read back feedback")
	}
	resp := newFeedbackResponse(fb)
	resp.ID = fbID
	resp.Warnings = warnings
	return ctx.JSON(http.StatusCreated, resp)
}

// GetFeedback handles GET /api/v2/predictions/:id/feedback
func (c *Controller) GetFeedback(ctx echo.Context) error {
	id, err := parseIDParam(ctx)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}
	if _, err := c.visiblePrediction(ctx, id); err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load prediction")
	}
	fb, err := c.DS.GetPredictionFeedback(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load feedback")
	}
	return ctx.JSON(http.StatusOK, newFeedbackResponse(fb))
}

func newFeedbackResponse(fb *datastore.PredictionFeedback) FeedbackResponse {
	return FeedbackResponse{
		ID:           fb.ID,
		PredictionID: fb.PredictionID,
		FeedbackType: fb.FeedbackType,
		ActualLabel:  deref(fb.ActualLabel),
		Notes:        deref(fb.Notes),
		User:         deref(fb.User),
		CreatedAt:    fb.CreatedAt,
	}
}
