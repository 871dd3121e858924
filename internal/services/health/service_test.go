package health

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"rd-prediction-backend/internal/inference"
)

type fakeModels []inference.ModelInfo

func (f fakeModels) Models() []inference.ModelInfo { return f }

func TestStatusMemoryWithDemoModels(t *testing.T) {
	svc := NewService(nil, fakeModels{
		{Key: inference.Pneumonia, Mode: inference.ModeONNX},
		{Key: inference.BrainTumor, Mode: inference.ModeDemo},
	})
	payload, healthy := svc.Status()
	if !healthy {
		t.Fatalf("expected healthy without database")
	}
	p := payload.(Payload)
	if p.Database != "memory" || p.Status != "degraded" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Models["brainTumor"] != inference.ModeDemo {
		t.Fatalf("unexpected model state: %+v", p.Models)
	}
}

func TestStatusDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	payload, healthy := NewService(db, nil).Status()
	if healthy {
		t.Fatalf("expected unhealthy when ping fails")
	}
	if p := payload.(Payload); p.Database != "disconnected" || p.Status != "unhealthy" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestStatusDatabaseUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing()

	payload, healthy := NewService(db, nil).Status()
	if !healthy || payload.(Payload).Database != "connected" {
		t.Fatalf("expected connected database, got %+v", payload)
	}
}
