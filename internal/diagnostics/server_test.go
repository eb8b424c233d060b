package diagnostics

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/martinmarsh/helm/internal/boatstate"
	"github.com/martinmarsh/helm/internal/diagnostics/middleware"
)

func TestHealthzIsUnprotected(t *testing.T) {
	s := New(":0", "secret", boatstate.New())
	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStateRequiresToken(t *testing.T) {
	s := New(":0", "secret", boatstate.New())
	req := httptest.NewRequest("GET", "/state", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStateReturnsSnapshotFields(t *testing.T) {
	state := boatstate.New()
	state.Set(boatstate.KeyCompass, boatstate.Int(1234))
	state.Set(boatstate.KeyMagVar, boatstate.Float(3.1))

	s := New(":0", "secret", state)
	token, err := middleware.GenerateToken("secret", "dashboard", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest("GET", "/state", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body[string(boatstate.KeyCompass)] != float64(1234) {
		t.Fatalf("expected compass 1234, got %v", body[string(boatstate.KeyCompass)])
	}
	if body[string(boatstate.KeyMagVar)] != 3.1 {
		t.Fatalf("expected mag_var 3.1, got %v", body[string(boatstate.KeyMagVar)])
	}
}
