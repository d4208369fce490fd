package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"poker-league/logger"
	"poker-league/services"

	"github.com/smartystreets/goconvey/convey"
)

func TestPushNotifier(t *testing.T) {
	convey.Convey("Given a notification service", t, func() {
		if err := logger.Init(); err != nil {
			t.Fatalf("init logger: %v", err)
		}
		var gotAuth string
		var gotBody map[string]json.RawMessage
		status := http.StatusAccepted
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(status)
		}))
		defer srv.Close()

		n := services.NewPushNotifier(srv.URL, "push-secret")
		change := services.BlindChange{
			GameDateID: "gd-1",
			Level:      3,
			SmallBlind: 100,
			BigBlind:   200,
			Trigger:    "expiry",
			At:         time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
		}

		convey.Convey("When a blind change is sent", func() {
			err := n.NotifyBlindChange(context.Background(), change)

			convey.Convey("Then it is posted with the bearer token", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(gotAuth, convey.ShouldEqual, "Bearer push-secret")
				convey.So(string(gotBody["type"]), convey.ShouldEqual, `"blind_change"`)

				var payload services.BlindChange
				convey.So(json.Unmarshal(gotBody["payload"], &payload), convey.ShouldBeNil)
				convey.So(payload.Level, convey.ShouldEqual, 3)
				convey.So(payload.Trigger, convey.ShouldEqual, "expiry")
			})
		})

		convey.Convey("When the service rejects it", func() {
			status = http.StatusServiceUnavailable
			err := n.NotifyBlindChange(context.Background(), change)

			convey.Convey("Then the failure is reported", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "503")
			})
		})
	})
}
