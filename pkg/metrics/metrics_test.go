package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.ballsAbandoned.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_balls_abandoned_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording a committed ball", func() {
			before := counterValue(globalManager.ballsCommitted.WithLabelValues("dual"))
			RecordBallCommitted("dual")

			Convey("Then the provenance counter advances", func() {
				So(counterValue(globalManager.ballsCommitted.WithLabelValues("dual")), ShouldEqual, before+1)
			})
		})

		Convey("When recording every helper", func() {
			So(func() {
				RecordSubmission("dual", "pending")
				RecordBallAbandoned()
				RecordLedgerConflict()
				RecordCommitLatency(1.5)
				RecordDuplicateClaim()
				UpdatePendingSlots(2)
				RecordDisputeRaised("runs_mismatch")
				RecordDisputeResolved("umpire_override")
				UpdateDisputesPending(1)
				RecordProjectionLatency(0.3)
				RecordProjectionCache(true)
				RecordProjectionCache(false)
				UpdateHubRooms(1)
				UpdateHubConnections(3)
				RecordHubBroadcast()
				RecordHubDroppedSend()
				UpdateQueueSize(4)
				UpdateQueueCapacity(16)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(2)
				UpdateWorkerCount(4)
				RecordWorkerError("hub")
				RecordSinkPublish("redis", true)
				RecordHTTPRequest("/v1/matches", "POST", "201")
				RecordHTTPRequestDuration("/v1/matches", "POST", "201", 3)
				RecordErrorByComponent("ledger", "conflict")
			}, ShouldNotPanic)
		})

		Convey("When asking for the registry", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
