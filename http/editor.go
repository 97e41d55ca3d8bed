package http

import (
	"net/http"

	"github.com/aukilabs/canvasindex/geometry"
)

// Hoverer resolves the element under a pointer.
type Hoverer interface {
	SetPointer(geometry.Point) string
}

// Selector selects the elements of a region.
type Selector interface {
	SelectRegion(geometry.Rect) []string
	Bounds() geometry.Rect
}

type hoverResponse struct {
	ID string `json:"id,omitempty"`
}

type selectResponse struct {
	IDs    []string      `json:"ids"`
	Bounds geometry.Rect `json:"bounds"`
}

// HandleHover moves the pointer to the x and y query parameters and returns
// the hovered element.
func HandleHover(h Hoverer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := pointParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, hoverResponse{ID: h.SetPointer(p)})
	}
}

// HandleSelect selects the elements overlapping the x, y, width and height
// query parameters.
func HandleSelect(s Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rect, err := rectParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		ids := s.SelectRegion(rect)
		writeJSON(w, http.StatusOK, selectResponse{
			IDs:    nonNil(ids),
			Bounds: s.Bounds(),
		})
	}
}
