package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/sectorclock/internal/adapters/http/api"
	"github.com/okian/sectorclock/internal/adapters/mq/queue"
	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockDependencies struct {
	enqueueErr error
	enqueued   []model.Trigger
	records    []model.Record
	readErr    error
}

func (m *mockDependencies) Enqueue(_ context.Context, t model.Trigger) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, t)
	return nil
}

func (m *mockDependencies) All(context.Context) ([]model.Record, error) {
	return m.records, m.readErr
}

func (m *mockDependencies) MostRecentFor(_ context.Context, name string) (model.Record, bool, error) {
	if m.readErr != nil {
		return model.Record{}, false, m.readErr
	}
	var (
		found model.Record
		ok    bool
	)
	for _, r := range m.records {
		if r.Name == name {
			found, ok = r, true
		}
	}
	return found, ok, nil
}

func (m *mockDependencies) SectorCount() int { return 3 }

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func secs(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := &mockDependencies{}
		stats := &mockStatsProvider{stats: map[string]interface{}{"active_sessions": 1}}
		h := api.NewServer(deps, stats).Handler()

		Convey("Then /healthz serves Prometheus metrics", func() {
			w := serve(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "sectorclock_timing_")
		})

		Convey("Then /stats serves the provider's counters", func() {
			w := serve(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got["active_sessions"], ShouldEqual, 1.0)
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
		})

		Convey("Then wrong methods are not found", func() {
			So(serve(h, http.MethodGet, "/triggers", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(h, http.MethodPost, "/leaderboard", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(h, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestTriggersHandler(t *testing.T) {
	Convey("Given the triggers endpoint", t, func() {
		deps := &mockDependencies{}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("When an identity trigger is posted", func() {
			w := serve(h, http.MethodPost, "/triggers", `{"kind":"scan","rider_id":" 04A1 ","display_name":"Alice"}`)

			Convey("Then it is queued with a server timestamp", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.enqueued, ShouldHaveLength, 1)
				So(deps.enqueued[0].Kind, ShouldEqual, model.KindIdentity)
				So(deps.enqueued[0].RiderID, ShouldEqual, "04A1")
				So(deps.enqueued[0].DisplayName, ShouldEqual, "Alice")
				So(deps.enqueued[0].At.IsZero(), ShouldBeFalse)
				So(deps.enqueued[0].ReceivedAt.Equal(deps.enqueued[0].At), ShouldBeTrue)
			})
		})

		Convey("When an anonymous button press carries its own timestamp", func() {
			w := serve(h, http.MethodPost, "/triggers", `{"kind":"button","ts":"2026-05-01T10:00:05.5Z"}`)

			Convey("Then the source time is kept", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.enqueued[0].Kind, ShouldEqual, model.KindAdvance)
				So(deps.enqueued[0].RiderID, ShouldBeEmpty)
				So(deps.enqueued[0].At.Equal(time.Date(2026, 5, 1, 10, 0, 5, 500_000_000, time.UTC)), ShouldBeTrue)
			})

			Convey("Then the arrival is stamped on the server clock", func() {
				So(time.Since(deps.enqueued[0].ReceivedAt), ShouldBeLessThan, time.Minute)
				So(deps.enqueued[0].ReceivedAt.Equal(deps.enqueued[0].At), ShouldBeFalse)
			})
		})

		Convey("Then malformed requests are rejected", func() {
			for _, body := range []string{
				`{`,
				`{"kind":"teleport"}`,
				`{"kind":"identity"}`,
				`{"kind":"advance","ts":"yesterday"}`,
			} {
				w := serve(h, http.MethodPost, "/triggers", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.enqueued, ShouldBeEmpty)
		})

		Convey("Then a full queue is reported as backpressure", func() {
			deps.enqueueErr = queue.ErrFull
			w := serve(h, http.MethodPost, "/triggers", `{"kind":"advance"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Body.String(), ShouldContainSubstring, "backpressure")
		})

		Convey("Then a closed queue is reported as unavailable", func() {
			deps.enqueueErr = queue.ErrClosed
			w := serve(h, http.MethodPost, "/triggers", `{"kind":"advance"}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestLeaderboardHandler(t *testing.T) {
	Convey("Given a leaderboard with a complete and a partial row", t, func() {
		deps := &mockDependencies{records: []model.Record{
			{Name: "Alice", Total: secs(9.5), Sectors: []time.Duration{secs(5), secs(3), secs(1.5)}},
			{Name: "Bob Smith", Total: secs(8), Sectors: []time.Duration{secs(5), secs(3)}},
			{Name: "Alice", Total: secs(9), Sectors: []time.Duration{secs(4.5), secs(3), secs(1.5)}, AvgSpeed: 40},
		}}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("Then GET /leaderboard lists every row with formatted times", func() {
			w := serve(h, http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var rows []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(rows, ShouldHaveLength, 3)
			So(rows[0]["total"], ShouldEqual, "0:09.5")
			So(rows[1]["sectors"], ShouldResemble, []any{"0:05.0", "0:03.0", nil})
			So(rows[2]["avg_speed_kmh"], ShouldEqual, 40.0)
		})

		Convey("Then GET /leaderboard/{name} returns the most recent row", func() {
			w := serve(h, http.MethodGet, "/leaderboard/Alice", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var row map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &row), ShouldBeNil)
			So(row["total"], ShouldEqual, "0:09.0")
		})

		Convey("Then escaped names are decoded", func() {
			w := serve(h, http.MethodGet, "/leaderboard/Bob%20Smith", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown riders are not found", func() {
			So(serve(h, http.MethodGet, "/leaderboard/Carol", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then an empty name is a bad request", func() {
			So(serve(h, http.MethodGet, "/leaderboard/", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then read failures are internal errors", func() {
			deps.readErr = errors.New("disk gone")
			So(serve(h, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusInternalServerError)
			So(serve(h, http.MethodGet, "/leaderboard/Alice", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}
