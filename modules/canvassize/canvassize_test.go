package canvassize

import (
	"testing"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/canvasindex/modules"
	"github.com/aukilabs/canvasindex/poller"
	"github.com/aukilabs/canvasindex/viewport"
	"github.com/stretchr/testify/require"
)

type sizeSink struct {
	sizes []geometry.Size
}

func (s *sizeSink) SetCanvasSize(size geometry.Size) {
	s.sizes = append(s.sizes, size)
}

func TestCanvasSize(t *testing.T) {
	p := poller.New(&poller.ManualScheduler{}, poller.Config{})
	r := models.NewRegistry(models.RegistryConfig{
		Universe: geometry.Size{Width: 1000, Height: 1000},
	}, p)
	defer r.Close()

	sink := &sizeSink{}
	m := &Module{
		Sink:    sink,
		Padding: geometry.Size{Width: 100, Height: 100},
		MinSize: geometry.Size{Width: 1000, Height: 800},
	}
	detach := modules.Attach(r, m)
	defer detach()
	require.Equal(t, []geometry.Size{{Width: 1000, Height: 800}}, sink.sizes)

	rects := map[string]geometry.Rect{
		"page":  geometry.NewRect(0, 0, 1200, 700),
		"child": geometry.NewRect(2000, 2000, 10, 10),
		"small": geometry.NewRect(0, 0, 10, 10),
	}
	add := func(id string, depth int) {
		r.Add(models.ElementRecord{
			ID:    id,
			Depth: depth,
			RectOf: func() geometry.Rect {
				return rects[id]
			},
		})
	}

	add("page", 0)
	require.Equal(t, geometry.Size{Width: 1300, Height: 800}, m.Size())

	add("child", 1)
	add("small", 0)
	require.Len(t, sink.sizes, 2)
	require.Equal(t, geometry.Size{Width: 1300, Height: 800}, sink.sizes[1])
}

func TestCanvasSizeWithViewport(t *testing.T) {
	p := poller.New(&poller.ManualScheduler{}, poller.Config{})
	r := models.NewRegistry(models.RegistryConfig{}, p)
	defer r.Close()

	v := viewport.New(geometry.Size{Width: 100, Height: 100}, geometry.Size{Width: 500, Height: 500})
	defer v.Close()
	unbind := r.Bind(v)
	defer unbind()

	detach := modules.Attach(r, &Module{
		Sink:    v,
		MinSize: geometry.Size{Width: 500, Height: 500},
	})
	defer detach()

	r.Add(models.ElementRecord{
		ID: "page",
		RectOf: func() geometry.Rect {
			return geometry.NewRect(0, 0, 2000, 300)
		},
	})

	require.Equal(t, geometry.Size{Width: 2000, Height: 500}, v.CanvasSize())
	require.Equal(t, geometry.NewRect(0, 0, 2000, 500), r.SpatialDebugInfo().Universe)
	require.Equal(t, []string{"page"}, r.FindOn(geometry.Point{X: 1500, Y: 100}))
}
