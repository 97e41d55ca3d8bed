package http

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/aukilabs/canvasindex/render"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// HandleSpatialDebug returns the structure counters of the spatial index. The
// nodes are included when the nodes query parameter is true.
func HandleSpatialDebug(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if withNodes, _ := strconv.ParseBool(r.URL.Query().Get("nodes")); withNodes {
			writeJSON(w, http.StatusOK, idx.SpatialSnapshot())
			return
		}
		writeJSON(w, http.StatusOK, idx.SpatialDebugInfo())
	}
}

// HandleSpatialPDF renders the spatial index as a PDF.
func HandleSpatialPDF(idx Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := render.WriteSpatialPDF(&buf, idx.SpatialSnapshot()); err != nil {
			status := http.StatusInternalServerError
			if errors.IsType(err, render.ErrTypeEmptyUniverse) {
				status = http.StatusConflict
			}

			logs.WithTag("path", r.URL.Path).Warn(err)
			writeError(w, status, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
