package health

import (
	"context"
	"database/sql"
	"time"

	"rd-prediction-backend/internal/inference"
)

const pingTimeout = 2 * time.Second

// ModelLister reports classifier load state.
type ModelLister interface {
	Models() []inference.ModelInfo
}

// Service encapsulates health-related checks.
type Service struct {
	DB     *sql.DB
	Models ModelLister
}

// NewService constructs a new health service. db may be nil when running on memory repositories.
func NewService(db *sql.DB, models ModelLister) *Service {
	return &Service{DB: db, Models: models}
}

// Payload is the /api/health body.
type Payload struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Models   map[string]string `json:"models"`
	Time     string            `json:"time"`
}

// Status reports overall health. Only an unreachable database makes the service unhealthy;
// models served in demo mode or missing only degrade it.
func (s *Service) Status() (any, bool) {
	p := Payload{
		Status:   "ok",
		Database: "memory",
		Models:   map[string]string{},
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	healthy := true

	if s.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			p.Database = "disconnected"
			healthy = false
		} else {
			p.Database = "connected"
		}
	}

	if s.Models != nil {
		for _, m := range s.Models.Models() {
			p.Models[string(m.Key)] = m.Mode
			if m.Mode != inference.ModeONNX {
				p.Status = "degraded"
			}
		}
	}
	if !healthy {
		p.Status = "unhealthy"
	}
	return p, healthy
}
