package types_test

import (
	"encoding/json"
	"testing"
	"time"

	types "github.com/okian/crease/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEnvelope(t *testing.T) {
	Convey("Given an Envelope", t, func() {
		env := types.Envelope{
			EventType:      "ball_committed",
			MatchID:        "m1",
			Payload:        map[string]int{"runs": 4},
			SequenceNumber: 7,
			Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}

		Convey("When it is encoded for the wire", func() {
			raw, err := json.Marshal(env)
			So(err, ShouldBeNil)

			Convey("Then it carries the documented keys", func() {
				var m map[string]any
				So(json.Unmarshal(raw, &m), ShouldBeNil)
				So(m["event_type"], ShouldEqual, "ball_committed")
				So(m["sequence_number"], ShouldEqual, 7.0)
				So(m["timestamp"], ShouldEqual, "2026-03-01T12:00:00Z")
				_, hasInnings := m["innings_id"]
				So(hasInnings, ShouldBeFalse)
			})
		})
	})
}
