package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rewardloop/abuse-engine/internal/detect"
	"github.com/rewardloop/abuse-engine/pkg/models"
)

func newTestRouter() (*gin.Engine, Deps) {
	gin.SetMode(gin.TestMode)

	analyzer := detect.NewAnalyzer(detect.DefaultAnalyzerConfig())
	deps := Deps{
		Analyzer:     analyzer,
		Validator:    detect.NewScoreValidator(analyzer, detect.DefaultValidatorConfig()),
		Guard:        detect.NewReferralGuard(nil, detect.DefaultReferralConfig()),
		Cooldown:     detect.NewCooldownGate(nil, 0),
		ForcedLoss:   detect.NewForcedLoss(0.80),
		Alerts:       detect.NewAlertManager(nil),
		Hub:          NewHub(),
		StoreBackend: "memory",
	}
	return SetupRouter(deps, nil), deps
}

func TestActorStatusRoute(t *testing.T) {
	r, deps := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/actor/0xA", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown actor: status = %d, want 404", w.Code)
	}

	deps.Analyzer.RecordAction("0xA", "tap", models.ActionContext{})

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/actor/0xA", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		ActorID  string                `json:"actorId"`
		Activity models.ActorActivity  `json:"activity"`
		Cooldown models.CooldownStatus `json:"cooldown"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.ActorID != "0xA" {
		t.Errorf("actorId = %q, want 0xA", body.ActorID)
	}
	if len(body.Activity.Records) != 1 {
		t.Errorf("recorded actions = %d, want 1", len(body.Activity.Records))
	}
	if !body.Cooldown.CanPlay {
		t.Error("actor with no plays should not be on cooldown")
	}
}
