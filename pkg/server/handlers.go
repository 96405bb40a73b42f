package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hed1ad/brminer/pkg/dataset"
	"github.com/hed1ad/brminer/pkg/detectors/brm"
	"github.com/hed1ad/brminer/pkg/distance"
	redisstore "github.com/hed1ad/brminer/pkg/store/redis"
)

const maxBodyBytes = 1 << 20

// ClassifyRequest is the body of POST /classify. Each value is a number,
// null for a missing value, or a label string for a categorical feature.
type ClassifyRequest struct {
	Values []any `json:"values"`
}

// ClassifyResponse is the body returned by POST /classify.
type ClassifyResponse struct {
	RequestID string  `json:"request_id"`
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// FeatureResponse describes one feature in GET /schema.
type FeatureResponse struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Label      bool     `json:"label,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// SchemaResponse is the body returned by GET /schema.
type SchemaResponse struct {
	Features   []FeatureResponse `json:"features"`
	LabelIndex int               `json:"label_index"`
	Threshold  float64           `json:"threshold"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"trained":   s.miner.Schema() != nil,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	schema := s.miner.Schema()
	if schema == nil {
		writeError(w, http.StatusServiceUnavailable, brm.ErrNotTrained.Error())
		return
	}

	var req ClassifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values is required")
		return
	}
	if len(req.Values) != schema.Len() {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("got %d values, schema has %d features", len(req.Values), schema.Len()))
		return
	}

	values, err := decodeValues(schema, req.Values)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	score, err := s.miner.Classify(dataset.Instance{Values: values, Schema: schema})
	switch {
	case errors.Is(err, distance.ErrSchemaMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, brm.ErrNotTrained):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("classify failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "classification failed")
		return
	}

	s.metrics.scores.Observe(score.Value)
	if score.IsAnomaly {
		s.metrics.anomalies.Inc()
	}

	id := RequestID(r.Context())
	if s.results != nil {
		score.Metadata = map[string]any{"request_id": id}
		result := score.Result(int(s.seq.Add(1)), time.Now())
		if err := s.results.SaveResult(r.Context(), id, result); err != nil {
			s.logger.Warn("failed to cache result", zap.String("request_id", id), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{
		RequestID: id,
		Score:     score.Value,
		IsAnomaly: score.IsAnomaly,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	schema := s.miner.Schema()
	if schema == nil {
		writeError(w, http.StatusServiceUnavailable, brm.ErrNotTrained.Error())
		return
	}

	resp := SchemaResponse{
		Features:   make([]FeatureResponse, schema.Len()),
		LabelIndex: schema.LabelIndex,
		Threshold:  s.miner.Threshold(),
	}
	for i, f := range schema.Features {
		resp.Features[i] = FeatureResponse{
			Name:       f.Name,
			Type:       f.Type.String(),
			Label:      schema.IsLabel(i),
			Categories: f.Values,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusNotFound, "result store disabled")
		return
	}

	id := mux.Vars(r)["id"]
	result, err := s.results.GetResult(r.Context(), id)
	if errors.Is(err, redisstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get result", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeValues converts JSON values to an instance vector. Unknown
// categorical labels get a code outside the known dictionary.
func decodeValues(schema *dataset.Schema, raw []any) ([]float64, error) {
	values := make([]float64, len(raw))
	for i, v := range raw {
		f := schema.Features[i]
		switch x := v.(type) {
		case nil:
			values[i] = dataset.Missing
		case float64:
			values[i] = x
		case string:
			if f.Type != dataset.Categorical {
				return nil, fmt.Errorf("feature %q is numeric, got string %q", f.Name, x)
			}
			code := f.Code(x)
			if code < 0 {
				code = len(f.Values)
			}
			values[i] = float64(code)
		default:
			return nil, fmt.Errorf("feature %q: unsupported value %v", f.Name, v)
		}
	}
	return values, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
