// Package server exposes a trained trend classifier over HTTP.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/ldsec/trendCNN/layers"
	"github.com/ldsec/trendCNN/model"
	"github.com/ldsec/trendCNN/utils"
	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
)

// maxWindows bounds the number of windows of one predict request
const maxWindows = 4096

// Handler serves predictions of one model. Layers keep per-call state, so
// forward passes are serialized.
type Handler struct {
	mu    sync.Mutex
	model *model.Sequential
}

func NewHandler(m *model.Sequential) *Handler {
	return &Handler{model: m}
}

// PredictRequest holds windows of WINDOW_SIZE steps by NFEATURES values
type PredictRequest struct {
	Windows [][][]float64 `json:"windows" binding:"required"`
}

type Prediction struct {
	Class         int       `json:"class"`
	Label         string    `json:"label"`
	Probabilities []float64 `json:"probabilities"`
}

type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// Router returns the gin engine with the /api/v1 routes
func Router(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/model", h.Model)
		api.POST("/predict", h.Predict)
	}
	return router
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "run_id": h.model.Metadata.RunID})
}

// Model describes the served network
func (h *Handler) Model(c *gin.Context) {
	total, trainable := h.model.CountParams()
	c.JSON(http.StatusOK, gin.H{
		"name":                 h.model.Name,
		"run_id":               h.model.Metadata.RunID,
		"created_at":           h.model.Metadata.CreatedAt,
		"classes":              h.model.Metadata.Classes,
		"input_shape":          h.model.Input,
		"params":               total,
		"trainable_params":     trainable,
		"non_trainable_params": total - trainable,
		"summary":              h.model.Summary(),
	})
}

func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	x, err := h.windows(req.Windows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid windows", "details": err.Error()})
		return
	}

	h.mu.Lock()
	probs, err := h.model.Predict(x, 0)
	h.mu.Unlock()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, layers.ErrShape) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "prediction failed", "details": err.Error()})
		return
	}

	classes := utils.Classify(probs)
	resp := PredictResponse{Predictions: make([]Prediction, len(x))}
	for i, class := range classes {
		best := int(class)
		resp.Predictions[i] = Prediction{Class: best, Label: h.label(best), Probabilities: probs.RawRowView(i)}
	}
	log.Lvlf3("predicted %d windows", len(x))
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) label(class int) string {
	if class < len(h.model.Metadata.Classes) {
		return h.model.Metadata.Classes[class]
	}
	return fmt.Sprint(class)
}

// windows checks the nesting of the request and converts it to matrices
func (h *Handler) windows(raw [][][]float64) ([]*mat.Dense, error) {
	if len(raw) == 0 {
		return nil, errors.New("no windows")
	}
	if len(raw) > maxWindows {
		return nil, fmt.Errorf("%d windows, at most %d per request", len(raw), maxWindows)
	}
	steps, features := h.model.Input.Rows(), h.model.Input.Cols()
	x := make([]*mat.Dense, len(raw))
	for i, w := range raw {
		if len(w) != steps {
			return nil, fmt.Errorf("window %d has %d steps, expected %d", i, len(w), steps)
		}
		data := make([]float64, 0, steps*features)
		for t, row := range w {
			if len(row) != features {
				return nil, fmt.Errorf("window %d step %d has %d features, expected %d", i, t, len(row), features)
			}
			data = append(data, row...)
		}
		x[i] = mat.NewDense(steps, features, data)
	}
	return x, nil
}
