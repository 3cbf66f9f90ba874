package audit

import "errors"

var (
	// ErrNoImage is returned by operations that need the plan image
	// (click capture, overlay rendering) when none is loaded. The plan
	// itself stays valid; the image must be re-uploaded.
	ErrNoImage = errors.New("plan has no image")

	// ErrInvalidMeasurement marks readings that are non-finite or
	// negative. Incomplete readings (not yet measured) are not an
	// error; see MeasurementRule.Complete.
	ErrInvalidMeasurement = errors.New("invalid measurement reading")

	// ErrDuplicatePoint is returned when a click lands inside the
	// dedup box of an existing point.
	ErrDuplicatePoint = errors.New("point too close to an existing point")

	ErrUnknownPoint     = errors.New("no point with that index")
	ErrUnknownPlan      = errors.New("no plan with that name")
	ErrDuplicatePlan    = errors.New("plan name already in use")
	ErrUnknownProject   = errors.New("no project with that name")
	ErrDuplicateProject = errors.New("project name already in use")

	// ErrNoRasterizer is returned when a paginated document is
	// uploaded but no page rasterizer has been injected.
	ErrNoRasterizer = errors.New("no page rasterizer configured")
)
