package scenario

import (
	"sort"
	"strconv"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/canvasindex/viewport"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeExpectationFailed = "scenario_expectation_failed"
	ErrTypeUnsupported       = "scenario_unsupported_statement"
)

// Result is the outcome of a query or an expectation.
type Result struct {
	Line     int      `json:"line"`
	Query    string   `json:"query"`
	Values   []string `json:"values"`
	Expected []string `json:"expected,omitempty"`
}

// Runner replays scripts against an element registry.
type Runner struct {
	Registry *models.Registry

	// The viewport receiving canvas, window and zoom statements. When nil,
	// canvas and window statements go straight to the registry and zoom
	// statements fail.
	Viewport *viewport.Viewport

	Layout *Layout

	// Runs the given number of poller idle slices.
	Poll func(slices int)
}

// RunString parses and runs a script.
func (r *Runner) RunString(s string) ([]Result, error) {
	script, err := ParseString(s)
	if err != nil {
		return nil, err
	}
	return r.Run(script)
}

// Run runs the statements of a script in order. It stops at the first failed
// expectation and returns the results collected so far.
func (r *Runner) Run(s *Script) ([]Result, error) {
	var results []Result

	for _, stmt := range s.Statements {
		res, err := r.run(stmt)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			return results, err
		}
	}

	logs.WithTag("statements", len(s.Statements)).
		WithTag("results", len(results)).
		Debug("scenario replayed")
	return results, nil
}

func (r *Runner) run(stmt *Statement) (*Result, error) {
	line := stmt.Pos.Line

	switch {
	case stmt.Canvas != nil:
		size := geometry.Size{Width: stmt.Canvas.Width, Height: stmt.Canvas.Height}
		if r.Viewport != nil {
			r.Viewport.SetCanvasSize(size)
		} else {
			r.Registry.SetCanvasSize(size)
		}

	case stmt.Window != nil:
		rect := stmt.Window.Rect.toRect()
		if r.Viewport != nil {
			r.Viewport.SetWindow(rect)
		} else {
			r.Registry.SetVisibleWindow(rect)
		}

	case stmt.Zoom != nil:
		if r.Viewport == nil {
			return nil, errors.New("zoom requires a viewport").
				WithType(ErrTypeUnsupported).
				WithTag("line", line)
		}
		if err := r.Viewport.SetZoom(stmt.Zoom.Factor); err != nil {
			return nil, err
		}

	case stmt.Add != nil:
		r.add(stmt.Add)

	case stmt.Move != nil:
		r.Layout.Set(stmt.Move.ID, stmt.Move.Rect.toRect())

	case stmt.Remove != nil:
		r.Registry.Remove(stmt.Remove.ID)
		r.Layout.Delete(stmt.Remove.ID)

	case stmt.Refresh != nil:
		r.Registry.ForceUpdate(stmt.Refresh.ID)

	case stmt.Poll != nil:
		if r.Poll == nil {
			return nil, errors.New("poll requires a poller").
				WithType(ErrTypeUnsupported).
				WithTag("line", line)
		}
		slices := 1
		if stmt.Poll.Slices != nil {
			slices = *stmt.Poll.Slices
		}
		r.Poll(slices)

	case stmt.Query != nil:
		return &Result{
			Line:   line,
			Query:  stmt.Query.Query.String(),
			Values: r.query(stmt.Query.Query),
		}, nil

	case stmt.Expect != nil:
		return r.expect(line, stmt.Expect)
	}

	return nil, nil
}

func (r *Runner) add(stmt *AddStmt) {
	rec := models.ElementRecord{
		ID:     stmt.ID,
		RectOf: r.Layout.RectFunc(stmt.ID),
	}

	for _, opt := range stmt.Options {
		switch {
		case opt.Depth != nil:
			rec.Depth = *opt.Depth
		case opt.Scope != nil:
			rec.Scope = *opt.Scope
		case opt.Rect != nil:
			r.Layout.Set(stmt.ID, opt.Rect.toRect())
		}
	}

	r.Registry.Add(rec)
}

func (r *Runner) expect(line int, stmt *ExpectStmt) (*Result, error) {
	query := stmt.Query
	res := &Result{
		Line:     line,
		Query:    query.String(),
		Values:   r.query(query),
		Expected: make([]string, len(stmt.Values)),
	}
	for i, v := range stmt.Values {
		res.Expected[i] = v.String()
	}
	if query.FindIn != nil || query.FindOn != nil {
		sort.Strings(res.Expected)
	}

	if !equalValues(res.Values, res.Expected) {
		return res, errors.New("expectation failed").
			WithType(ErrTypeExpectationFailed).
			WithTag("line", line).
			WithTag("query", res.Query).
			WithTag("expected", res.Expected).
			WithTag("actual", res.Values)
	}
	return res, nil
}

// query runs a query and formats its result. Region and point queries return
// sorted ids.
func (r *Runner) query(q *Query) []string {
	switch {
	case q.FindIn != nil:
		ids := r.Registry.FindIn(q.FindIn.toRect())
		sort.Strings(ids)
		return nonNil(ids)

	case q.FindOn != nil:
		ids := r.Registry.FindOn(q.FindOn.toPoint())
		sort.Strings(ids)
		return nonNil(ids)

	case q.Frontest != nil:
		if id, ok := r.Registry.GetFrontest(q.Frontest.toPoint()); ok {
			return []string{id}
		}
		return []string{}

	case q.Rect != nil:
		rect := r.Registry.GetRect(*q.Rect)
		return formatFloats(rect.X, rect.Y, rect.Width, rect.Height)

	case q.Boundary:
		size := r.Registry.GetBoundarySize()
		return formatFloats(size.Width, size.Height)

	case q.Tracked != nil:
		return []string{strconv.FormatBool(r.Registry.IsTracked(*q.Tracked))}
	}

	return []string{}
}

func (r RectLit) toRect() geometry.Rect {
	return geometry.NewRect(r.X, r.Y, r.Width, r.Height)
}

func (p PointLit) toPoint() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y}
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
