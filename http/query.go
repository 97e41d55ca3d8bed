package http

import (
	"net/http"
	"strconv"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/canvasindex/spatial"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"
)

// Index is the part of an element registry exposed over HTTP.
type Index interface {
	FindIn(geometry.Rect) []string
	FindOn(geometry.Point) []string
	GetFrontest(geometry.Point) (string, bool)
	GetRect(id string) geometry.Rect
	Record(id string) (models.ElementRecord, bool)
	GetBoundarySize() geometry.Size
	SpatialDebugInfo() spatial.DebugInfo
	SpatialSnapshot() models.SpatialSnapshot
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

type frontestResponse struct {
	ID    string `json:"id,omitempty"`
	Found bool   `json:"found"`
}

type rectResponse struct {
	ID    string        `json:"id"`
	Known bool          `json:"known"`
	Depth int           `json:"depth"`
	Scope string        `json:"scope,omitempty"`
	Rect  geometry.Rect `json:"rect"`
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// HandleFindIn returns the elements overlapping the x, y, width and height
// query parameters.
func HandleFindIn(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rect, err := rectParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, idsResponse{IDs: nonNil(idx.FindIn(rect))})
	}
}

// HandleFindOn returns the elements containing the x and y query parameters.
func HandleFindOn(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := pointParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, idsResponse{IDs: nonNil(idx.FindOn(p))})
	}
}

func HandleFrontest(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := pointParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		id, ok := idx.GetFrontest(p)
		writeJSON(w, http.StatusOK, frontestResponse{ID: id, Found: ok})
	}
}

// HandleRect returns the last known rect of the element given by the id query
// parameter. Unknown elements are reported with the zero rect.
func HandleRect(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing id parameter").
				WithType(ErrTypeBadRequest))
			return
		}

		rec, known := idx.Record(id)
		writeJSON(w, http.StatusOK, rectResponse{
			ID:    id,
			Known: known,
			Depth: rec.Depth,
			Scope: rec.Scope,
			Rect:  idx.GetRect(id),
		})
	}
}

func HandleBoundary(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, idx.GetBoundarySize())
	}
}

func rectParam(r *http.Request) (geometry.Rect, error) {
	values, err := floatParams(r, "x", "y", "width", "height")
	if err != nil {
		return geometry.Rect{}, err
	}
	return geometry.NewRect(values[0], values[1], values[2], values[3]), nil
}

func pointParam(r *http.Request) (geometry.Point, error) {
	values, err := floatParams(r, "x", "y")
	if err != nil {
		return geometry.Point{}, err
	}
	return geometry.Point{X: values[0], Y: values[1]}, nil
}

func floatParams(r *http.Request, names ...string) ([]float64, error) {
	query := r.URL.Query()
	values := make([]float64, len(names))

	for i, name := range names {
		raw := query.Get(name)
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.New("invalid query parameter").
				WithType(ErrTypeBadRequest).
				WithTag("name", name).
				WithTag("value", raw).
				Wrap(err)
		}
		values[i] = v
	}

	return values, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.WithTag("status", status).
			Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
