package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/collapsinghierarchy/relay/internal/metrics"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestCountersAppearAfterIncrement(t *testing.T) {
	m := metrics.New()
	m.IncConnections()
	m.IncControl("create_ok")
	m.AddBytesRelayed(128)
	m.SetRooms(3)
	m.SetMembers(9)

	out := scrape(t, m)

	for _, want := range []string{
		"relay_ws_connections_total 1",
		`relay_control_frames_total{outcome="create_ok"} 1`,
		"relay_binary_bytes_total 128",
		"relay_rooms_active 3",
		"relay_members_active 9",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestAddBytesRelayedIgnoresNonPositive(t *testing.T) {
	m := metrics.New()
	m.AddBytesRelayed(0)
	m.AddBytesRelayed(-5)

	out := scrape(t, m)
	if !strings.Contains(out, "relay_binary_bytes_total 0") {
		t.Fatalf("expected counter to remain at 0, got:\n%s", out)
	}
}
