package render

import (
	"image/color"
	"io"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
)

const (
	// The page width in millimeters. The page height follows the universe
	// aspect ratio.
	PageWidth = 297.0

	ErrTypeEmptyUniverse = "empty_universe"
)

var (
	nodeStroke    = canvas.Hex("#9e9e9e")
	windowStroke  = canvas.Hex("#d32f2f")
	elementStroke = canvas.Hex("#1565c0")
	elementFill   = canvas.RGBA(0.08, 0.4, 0.75, 0.15)
	trackedStroke = canvas.Hex("#ef6c00")
	trackedFill   = canvas.RGBA(0.94, 0.42, 0, 0.2)
	transparent   = color.RGBA{0, 0, 0, 0}
	nodeWidth     = 0.2
	elementWidth  = 0.3
	windowWidth   = 0.5
	minPageHeight = 10.0
)

// WriteSpatialPDF draws the nodes of a spatial snapshot, its elements and the
// visible window as a one page PDF. Tracked elements are drawn in orange.
func WriteSpatialPDF(w io.Writer, snap models.SpatialSnapshot) error {
	universe := snap.Universe
	if universe.Width <= 0 || universe.Height <= 0 {
		return errors.New("cannot render an empty universe").
			WithType(ErrTypeEmptyUniverse).
			WithTag("universe", universe)
	}

	scale := PageWidth / universe.Width
	height := universe.Height * scale
	if height < minPageHeight {
		height = minPageHeight
	}

	writer := pdf.New(w, PageWidth, height, nil)
	writer.SetInfo("Spatial index", "", "quadtree", "", "canvasindex")

	c := canvas.New(PageWidth, height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)

	project := func(r geometry.Rect) geometry.Rect {
		return geometry.Rect{
			X:      (r.X - universe.X) * scale,
			Y:      (r.Y - universe.Y) * scale,
			Width:  r.Width * scale,
			Height: r.Height * scale,
		}
	}

	ctx.SetFillColor(transparent)
	ctx.SetStrokeColor(nodeStroke)
	ctx.SetStrokeWidth(nodeWidth)
	for _, n := range snap.Nodes {
		if !n.Leaf {
			continue
		}
		drawRect(ctx, project(n.Region))
	}

	ctx.SetStrokeWidth(elementWidth)
	for _, e := range snap.Elements {
		if e.Rect.IsDegenerate() {
			continue
		}

		if e.Tracked {
			ctx.SetFillColor(trackedFill)
			ctx.SetStrokeColor(trackedStroke)
		} else {
			ctx.SetFillColor(elementFill)
			ctx.SetStrokeColor(elementStroke)
		}
		drawRect(ctx, project(e.Rect))
	}

	if !snap.VisibleWindow.IsDegenerate() {
		ctx.SetFillColor(transparent)
		ctx.SetStrokeColor(windowStroke)
		ctx.SetStrokeWidth(windowWidth)
		drawRect(ctx, project(snap.VisibleWindow))
	}

	c.RenderTo(writer)
	if err := writer.Close(); err != nil {
		return errors.New("writing pdf failed").Wrap(err)
	}
	return nil
}

func drawRect(ctx *canvas.Context, r geometry.Rect) {
	ctx.DrawPath(r.X, r.Y, canvas.Rectangle(r.Width, r.Height))
}
