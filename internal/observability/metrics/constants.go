// Package metrics provides constants used across metric definitions.
package metrics

// Operation type constants used by the datastore and analytics recorders.
const (
	// OpPrediction represents a model prediction.
	OpPrediction = "prediction"
	// OpGradCAM represents a Grad-CAM explanation.
	OpGradCAM = "gradcam"
	// OpModelLoad represents loading or reloading the model.
	OpModelLoad = "model_load"
	// OpDbQuery represents database query operations.
	OpDbQuery = "db_query"
	// OpDbInsert represents database insert operations.
	OpDbInsert = "db_insert"
	// OpDbUpdate represents database update operations.
	OpDbUpdate = "db_update"
	// OpMigration represents schema migration runs.
	OpMigration = "migration"
	// OpAnalytics represents analytics query operations.
	OpAnalytics = "analytics"
)

// Label value constants used for metric labels.
const (
	LabelSuccess = "success"
	LabelError   = "error"
	LabelHit     = "hit"
	LabelMiss    = "miss"
	LabelTrain   = "train"
	LabelVal     = "val"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01

	// BucketFactor2 is the common exponential growth factor for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// PercentageFactor is the multiplier to convert a ratio to a percentage.
const PercentageFactor = 100.0
