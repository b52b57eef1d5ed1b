// internal/api/v2/control.go
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// ControlResult represents the result of a control operation
type ControlResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Action    string     `json:"action"`
	Model     *ModelInfo `json:"model,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ModelInfo describes the cached classifier.
type ModelInfo struct {
	Loaded       bool     `json:"loaded"`
	Version      string   `json:"version,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	ImageSize    int      `json:"image_size,omitempty"`
	WeightsPath  string   `json:"weights_path"`
	WeightsFound bool     `json:"weights_found"`
}

// initAdminRoutes registers the administrator-only control endpoints.
func (c *Controller) initAdminRoutes() {
	g := c.Group.Group("/admin", c.requireAuth(), c.requireAdmin())
	g.GET("/model", c.GetModelInfo)
	g.POST("/model/reload", c.ReloadModel)
}

func (c *Controller) modelInfo(clf *classifier.Classifier) *ModelInfo {
	info := &ModelInfo{WeightsPath: c.Settings.Model.Path}
	if clf == nil {
		return info
	}
	info.Loaded = true
	info.Version = clf.Version
	info.Classes = clf.ClassNames
	info.ImageSize = clf.ImageSize
	info.WeightsFound = clf.WeightsFound
	return info
}

// GetModelInfo handles GET /api/v2/admin/model. It does not trigger a load.
func (c *Controller) GetModelInfo(ctx echo.Context) error {
	if !c.Loader.Loaded() {
		return ctx.JSON(http.StatusOK, c.modelInfo(nil))
	}
	clf, err := c.Loader.Get()
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to read model state")
	}
	return ctx.JSON(http.StatusOK, c.modelInfo(clf))
}

// ReloadModel handles POST /api/v2/admin/model/reload. It rebuilds the classifier from
// the weight file and class names on disk; on failure the previous model keeps serving.
func (c *Controller) ReloadModel(ctx echo.Context) error {
	c.logger.Info("model reload requested",
		logger.String("username", currentUser(ctx)),
		logger.String("ip", ctx.RealIP()))

	clf, err := c.Loader.Reload()
	c.classifierMetrics().RecordModelLoad(err)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Model reload failed")
	}

	msg := "Model reloaded"
	if !clf.WeightsFound {
		msg = "Model reloaded without a weight file, predictions use initial weights"
	}
	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   msg,
		Action:    ActionReloadModel,
		Model:     c.modelInfo(clf),
		Timestamp: time.Now(),
	})
}
