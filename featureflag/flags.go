package featureflag

type Flag string

const (
	FlagDisableVisibilityGating Flag = "DISABLE_VISIBILITY_GATING"
	FlagRetainDegenerateItems   Flag = "RETAIN_DEGENERATE_ITEMS"
	FlagDisableHoverTracking    Flag = "DISABLE_HOVER_TRACKING"
	FlagDisableCanvasAutoSize   Flag = "DISABLE_CANVAS_AUTO_SIZE"
)
