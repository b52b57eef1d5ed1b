// internal/api/v2/predictions.go
package api

import (
	"bytes"
	"encoding/base64"
	"image"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/gradcam"
	"github.com/sonoscan/sonoscan/internal/imaging"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/overlay"
	"github.com/sonoscan/sonoscan/internal/report"
)

// allowedImageExtensions are the upload types the classifier accepts.
var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// PredictionResponse is a stored prediction as returned by the API.
type PredictionResponse struct {
	ID               uint               `json:"id"`
	Filename         string             `json:"filename"`
	PredictedLabel   string             `json:"predicted_label"`
	Confidence       float64            `json:"confidence"`
	Probabilities    map[string]float64 `json:"probabilities,omitempty"`
	User             string             `json:"user,omitempty"`
	ModelVersion     string             `json:"model_version,omitempty"`
	PatientID        string             `json:"patient_id,omitempty"`
	ReportPath       string             `json:"report_path,omitempty"`
	ProcessingTimeMs *float64           `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// GradCAMResponse carries the explanation overlay as a base64 PNG.
type GradCAMResponse struct {
	Layer      string `json:"layer"`
	Stage      string `json:"stage"`
	ClassIndex int    `json:"class_index"`
	ClassName  string `json:"class_name"`
	OverlayPNG string `json:"overlay_png"`
}

// CreatePredictionResponse is returned by POST /predictions.
type CreatePredictionResponse struct {
	Prediction PredictionResponse `json:"prediction"`
	GradCAM    *GradCAMResponse   `json:"gradcam,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// ReportResponse is returned by POST /predictions/:id/report.
type ReportResponse struct {
	PredictionID uint     `json:"prediction_id"`
	ReportPath   string   `json:"report_path"`
	Warnings     []string `json:"warnings,omitempty"`
}

func (c *Controller) initPredictionRoutes() {
	g := c.Group.Group("/predictions", c.requireAuth())
	g.POST("", c.CreatePrediction)
	g.GET("", c.ListPredictions)
	g.GET("/:id", c.GetPrediction)
	g.POST("/:id/report", c.CreateReport)
	g.GET("/:id/report", c.DownloadReport)
	g.POST("/:id/feedback", c.SubmitFeedback)
	g.GET("/:id/feedback", c.GetFeedback)
}

func newPredictionResponse(p *datastore.Prediction) PredictionResponse {
	probs, _ := p.ProbabilityMap()
	return PredictionResponse{
		ID:               p.ID,
		Filename:         p.Filename,
		PredictedLabel:   p.PredictedLabel,
		Confidence:       p.Confidence,
		Probabilities:    probs,
		User:             deref(p.User),
		ModelVersion:     deref(p.ModelVersion),
		PatientID:        deref(p.PatientID),
		ReportPath:       deref(p.ReportPath),
		ProcessingTimeMs: p.ProcessingTimeMs,
		CreatedAt:        p.CreatedAt,
	}
}

// CreatePrediction handles POST /api/v2/predictions. It classifies the uploaded image,
// optionally explains it with Grad-CAM and logs the result.
func (c *Controller) CreatePrediction(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	username := currentUser(ctx)

	fh, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, err, "An image file is required in the \"image\" field", http.StatusBadRequest)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExtensions[ext] {
		return c.HandleError(ctx, nil, "Unsupported image type, use PNG or JPEG", http.StatusBadRequest)
	}

	wantCAM, err := boolForm(ctx, "gradcam", c.Settings.GradCAM.Enabled)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}

	img, err := readUpload(fh)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to read the uploaded image")
	}

	clf, err := c.Loader.Get()
	if err != nil {
		c.classifierMetrics().RecordModelLoad(err)
		return c.HandleError(ctx, err, "Model is not available", http.StatusServiceUnavailable)
	}

	var classIdx *int
	if raw := ctx.FormValue("class_idx"); raw != "" {
		idx, convErr := strconv.Atoi(raw)
		if convErr != nil || idx < 0 || idx >= len(clf.ClassNames) {
			return c.HandleError(ctx, convErr,
				"class_idx must be between 0 and "+strconv.Itoa(len(clf.ClassNames)-1), http.StatusBadRequest)
		}
		classIdx = &idx
	}

	pred, err := clf.Predict(img)
	if err != nil {
		c.classifierMetrics().RecordPredictionError(err)
		return c.HandleServiceError(ctx, err, "Prediction failed")
	}
	c.classifierMetrics().RecordPrediction(pred.Label, clf.Version, pred.Confidence, pred.ProcessingTime.Seconds())

	var warnings []string
	resp := CreatePredictionResponse{}

	if wantCAM {
		cam, _, camErr := c.explain(clf, img, classIdx)
		if errors.IsCategory(camErr, errors.CategoryConfiguration) {
			return c.HandleServiceError(ctx, camErr, "Grad-CAM is misconfigured")
		}
		if camErr != nil {
			c.logger.Warn("grad-cam failed", logger.Error(camErr))
			warnings = append(warnings, "Grad-CAM explanation unavailable: "+camErr.Error())
		} else {
			resp.GradCAM = cam
		}
	}

	ms := pred.ProcessingMillis()
	id, err := c.DS.LogPrediction(reqCtx, datastore.PredictionInput{
		Filename:         fh.Filename,
		PredictedLabel:   pred.Label,
		Confidence:       pred.Confidence,
		User:             username,
		ModelVersion:     clf.Version,
		Probabilities:    pred.Probabilities,
		PatientID:        strings.TrimSpace(ctx.FormValue("patient_id")),
		ProcessingTimeMs: &ms,
	})
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to log prediction")
	}
	c.invalidateAnalytics()

	warnings = appendWarning(warnings, c.logActivity(reqCtx, username, datastore.ActivityPrediction))
	if err := c.saveUpload(id, img); err != nil {
		c.logger.Warn("upload copy not saved", logger.Int64("prediction_id", int64(id)), logger.Error(err))
		warnings = append(warnings, "original image was not kept, reports will be unavailable")
	}

	stored, err := c.DS.GetPrediction(reqCtx, id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to read back prediction")
	}
	resp.Prediction = newPredictionResponse(stored)
	resp.Warnings = warnings

	c.logger.Info("prediction created",
		logger.Int64("prediction_id", int64(id)),
		logger.String("label", pred.Label),
		logger.Float64("confidence", pred.Confidence),
		logger.String("username", username))

	return ctx.JSON(http.StatusCreated, resp)
}

// explain runs Grad-CAM on img and renders the overlay.
func (c *Controller) explain(clf *classifier.Classifier, img image.Image, classIdx *int) (*GradCAMResponse, image.Image, error) {
	start := time.Now()
	explainer, err := gradcam.New(clf.Model, c.Settings.GradCAM.TargetLayer)
	if err != nil {
		return nil, nil, err
	}
	x, err := clf.Preprocess(img)
	if err != nil {
		return nil, nil, err
	}
	res, err := explainer.Explain(x, classIdx)
	if err != nil {
		return nil, nil, err
	}
	ov, err := overlay.Render(img, res.Map, c.Settings.GradCAM.Alpha)
	if err != nil {
		return nil, nil, err
	}
	png, err := overlay.EncodePNG(ov)
	if err != nil {
		return nil, nil, err
	}
	c.classifierMetrics().RecordGradCAM(explainer.Layer(), time.Since(start).Seconds())

	return &GradCAMResponse{
		Layer:      explainer.Target(),
		Stage:      explainer.Layer(),
		ClassIndex: res.ClassIndex,
		ClassName:  clf.ClassNames[res.ClassIndex],
		OverlayPNG: base64.StdEncoding.EncodeToString(png),
	}, ov, nil
}

// readUpload decodes the multipart file.
func readUpload(fh *multipart.FileHeader) (*image.RGBA, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("operation", "open_upload").
			Build()
	}
	defer func() { _ = f.Close() }()
	return imaging.Decode(f)
}

// uploadPath is where the PNG copy of a prediction's input lives.
func (c *Controller) uploadPath(id uint) string {
	return filepath.Join(c.Settings.Reports.Dir, uploadsDir, "prediction_"+strconv.FormatUint(uint64(id), 10)+".png")
}

// saveUpload keeps the decoded input so reports can be generated later.
func (c *Controller) saveUpload(id uint, img image.Image) error {
	png, err := overlay.EncodePNG(img)
	if err != nil {
		return err
	}
	path := c.uploadPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func (c *Controller) loadUpload(id uint) (*image.RGBA, error) {
	data, err := os.ReadFile(c.uploadPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("original image for prediction %d is not available", id).
				Component("api").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(data))
}

// visiblePrediction loads a prediction the current user may see. Other users'
// predictions are reported as missing unless the caller is an administrator.
func (c *Controller) visiblePrediction(ctx echo.Context, id uint) (*datastore.Prediction, error) {
	p, err := c.DS.GetPrediction(ctx.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	user := currentUser(ctx)
	if user == "" || (!c.isAdmin(ctx) && deref(p.User) != user) {
		return nil, errors.Newf("prediction %d not found", id).
			Component("api").
			Category(errors.CategoryNotFound).
			Build()
	}
	return p, nil
}

// ListPredictions handles GET /api/v2/predictions. Administrators see every prediction,
// other users their own.
func (c *Controller) ListPredictions(ctx echo.Context) error {
	limit, err := intQuery(ctx, "limit", DefaultListLimit, 1, MaxListLimit)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}

	var rows []datastore.Prediction
	if c.isAdmin(ctx) && ctx.QueryParam("scope") != "mine" {
		rows, err = c.DS.FetchPredictions(ctx.Request().Context(), limit)
	} else {
		rows, err = c.Analytics.UserRecentPredictions(ctx.Request().Context(), currentUser(ctx), limit)
	}
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to list predictions")
	}

	out := make([]PredictionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newPredictionResponse(&rows[i]))
	}
	return ctx.JSON(http.StatusOK, out)
}

// GetPrediction handles GET /api/v2/predictions/:id
func (c *Controller) GetPrediction(ctx echo.Context) error {
	id, err := parseIDParam(ctx)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}
	p, err := c.visiblePrediction(ctx, id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load prediction")
	}
	return ctx.JSON(http.StatusOK, newPredictionResponse(p))
}

// CreateReport handles POST /api/v2/predictions/:id/report. The report file is the
// result; recording its path and the download activity are best effort.
func (c *Controller) CreateReport(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseIDParam(ctx)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}
	p, err := c.visiblePrediction(ctx, id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load prediction")
	}
	original, err := c.loadUpload(id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load the original image")
	}

	var warnings []string
	probs, err := p.ProbabilityMap()
	if err != nil {
		warnings = append(warnings, "stored probabilities could not be decoded")
	}

	data := report.ReportData{
		PredictionID:  p.ID,
		Label:         p.PredictedLabel,
		Confidence:    p.Confidence,
		Probabilities: probs,
		ModelVersion:  deref(p.ModelVersion),
		Username:      deref(p.User),
		PatientID:     deref(p.PatientID),
		Timestamp:     p.CreatedAt,
		Original:      original,
	}

	if c.Settings.GradCAM.Enabled {
		clf, loadErr := c.Loader.Get()
		if loadErr == nil {
			idx, ok := classIndex(clf, p.PredictedLabel)
			var target *int
			if ok {
				target = &idx
			}
			_, ov, camErr := c.explain(clf, original, target)
			if errors.IsCategory(camErr, errors.CategoryConfiguration) {
				return c.HandleServiceError(ctx, camErr, "Grad-CAM is misconfigured")
			}
			if camErr == nil {
				data.Overlay = ov
			} else {
				loadErr = camErr
			}
		}
		if loadErr != nil {
			c.logger.Warn("report without overlay", logger.Int64("prediction_id", int64(id)), logger.Error(loadErr))
			warnings = append(warnings, "Grad-CAM overlay omitted from report")
		}
	}

	path, err := report.Generate(c.Settings.Reports.Dir, data)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to generate report")
	}

	if err := c.DS.UpdatePredictionReportPath(reqCtx, id, path); err != nil {
		c.logger.Warn("report path not recorded", logger.Int64("prediction_id", int64(id)), logger.Error(err))
		warnings = append(warnings, "report path was not recorded")
	}
	warnings = appendWarning(warnings, c.logActivity(reqCtx, currentUser(ctx), datastore.ActivityReportDownload))

	return ctx.JSON(http.StatusCreated, ReportResponse{
		PredictionID: id,
		ReportPath:   path,
		Warnings:     warnings,
	})
}

// DownloadReport handles GET /api/v2/predictions/:id/report and serves the last
// generated report.
func (c *Controller) DownloadReport(ctx echo.Context) error {
	id, err := parseIDParam(ctx)
	if err != nil {
		return c.HandleServiceError(ctx, err, "")
	}
	p, err := c.visiblePrediction(ctx, id)
	if err != nil {
		return c.HandleServiceError(ctx, err, "Failed to load prediction")
	}
	path := deref(p.ReportPath)
	if path == "" {
		return c.HandleError(ctx, nil, "No report has been generated for this prediction", http.StatusNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return c.HandleError(ctx, err, "Report file is missing", http.StatusNotFound)
	}
	c.logActivity(ctx.Request().Context(), currentUser(ctx), datastore.ActivityReportDownload)
	return ctx.Attachment(path, filepath.Base(path))
}

func classIndex(clf *classifier.Classifier, label string) (int, bool) {
	for i, name := range clf.ClassNames {
		if name == label {
			return i, true
		}
	}
	return 0, false
}
