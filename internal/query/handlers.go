// Package query serves read-only population lookups against a loaded
// snapshot. The snapshot is immutable after load, so handlers run fully
// concurrently with no locking.
package query

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thehardbits/gpw/internal/hexgrid"
	"github.com/thehardbits/gpw/pkg/logging"
)

// Lookup outcomes recorded on metrics.
const (
	outcomeHit     = "hit"
	outcomeMiss    = "miss"
	outcomeInvalid = "invalid"
)

// Index is the read surface handlers resolve lookups against.
type Index interface {
	Len() int
	Reduce(cell hexgrid.Cell) (float32, bool)
}

// Handlers holds the query endpoints' shared state.
type Handlers struct {
	index    Index
	logger   logging.Logger
	lookups  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHandlers creates the query handlers. The metric vectors may be nil,
// for example in tests.
func NewHandlers(index Index, logger logging.Logger, lookups *prometheus.CounterVec, duration *prometheus.HistogramVec) *Handlers {
	return &Handlers{
		index:    index,
		logger:   logger,
		lookups:  lookups,
		duration: duration,
	}
}

// HandlePopulation resolves the request path as a hexadecimal cell index
// and answers with its population. Anything that does not name a stored
// region is a 404, never a server error.
func (h *Handlers) HandlePopulation(c *gin.Context) {
	start := time.Now()
	raw := strings.TrimPrefix(c.Param("cell"), "/")

	cell, err := hexgrid.ParseCell(raw)
	if err != nil {
		h.observe(outcomeInvalid, start)
		c.Status(http.StatusNotFound)
		return
	}

	population, ok := h.index.Reduce(cell)
	if !ok {
		h.observe(outcomeMiss, start)
		c.Status(http.StatusNotFound)
		return
	}

	h.observe(outcomeHit, start)
	c.String(http.StatusOK, strconv.FormatFloat(float64(population), 'f', -1, 32))
}

func (h *Handlers) observe(outcome string, start time.Time) {
	if h.lookups != nil {
		h.lookups.WithLabelValues(outcome).Inc()
	}
	if h.duration != nil {
		h.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}
