package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it uses the service namespace", func() {
				So(m.namespace, ShouldEqual, "smartsession")
				So(m.enabled, ShouldBeTrue)
				So(m.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every option is applied", func() {
				So(m.namespace, ShouldEqual, "test_namespace")
				So(m.subsystem, ShouldEqual, "test_subsystem")
				So(m.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(m.enabled, ShouldBeFalse)
				So(m.refreshInterval, ShouldEqual, 5*time.Second)
			})

			Convey("Then metric names carry the prefix", func() {
				m.framesDuplicate.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_prefix_frames_duplicate_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty or nil options are passed", func() {
			m := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithCustomLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the defaults are kept", func() {
				So(m.namespace, ShouldEqual, "smartsession")
				So(m.subsystem, ShouldEqual, "core")
				So(len(m.histogramBuckets), ShouldBeGreaterThan, 0)
				So(m.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When frames are processed", func() {
			before := testutil.ToFloat64(globalManager.framesProcessed.WithLabelValues("CONFUSED", "NONE"))
			RecordFrameProcessed("CONFUSED", "NONE")
			RecordFrameProcessed("CONFUSED", "NONE")

			Convey("Then the labelled counter moves", func() {
				after := testutil.ToFloat64(globalManager.framesProcessed.WithLabelValues("CONFUSED", "NONE"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When a provider failure is recorded", func() {
			before := testutil.ToFloat64(globalManager.providerFailures)
			kindBefore := testutil.ToFloat64(globalManager.frameErrorsByKind.WithLabelValues("provider_failure"))
			RecordProviderFailure()

			Convey("Then both the total and the kind counter move", func() {
				So(testutil.ToFloat64(globalManager.providerFailures)-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.frameErrorsByKind.WithLabelValues("provider_failure"))-kindBefore, ShouldEqual, 1)
			})
		})

		Convey("When gauges are set", func() {
			UpdateSubjectsTracked(7)
			UpdateObservers(3)
			UpdateQueueSize(12)
			UpdateTimersTracked("engagement", 4)

			Convey("Then they report the last value", func() {
				So(testutil.ToFloat64(globalManager.subjectsTracked), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.observers), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.timersTracked.WithLabelValues("engagement")), ShouldEqual, 4)
			})
		})

		Convey("When delivery outcomes are recorded", func() {
			before := testutil.ToFloat64(globalManager.deliveryFailures)
			dropped := testutil.ToFloat64(globalManager.updatesDropped)
			RecordDeliveryFailure()
			RecordUpdateDropped()
			RecordBroadcast("subject_update")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.deliveryFailures)-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.updatesDropped)-dropped, ShouldEqual, 1)
			})
		})

		Convey("When every recorder is called", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordFrameDuplicate()
					RecordFrameLatency(1.5)
					RecordFrameError("bad_request")
					RecordMalformedMetrics()
					RecordResolverRule("sustained_confusion")
					RecordSubjectOffline()
					RecordSubjectEvicted()
					RecordObserverEvent("connect")
					RecordDeliveryLatency(0.3)
					UpdateStoreShardCount(16)
					UpdateStoreRecordsTotal(10)
					UpdateStoreRecordsPerShard("0", 1)
					RecordStoreUpsertLatency(0.01)
					RecordStoreQueryLatency(0.02)
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.5)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					UpdateWorkerActiveCount(4)
					UpdateWorkerMessagesPerSecond(12.5)
					RecordWorkerProcessingLatency(2)
					RecordWorkerError()
					RecordHTTPRequest("/teacher/sessions", "GET", "200")
					RecordHTTPRequestDuration("/teacher/sessions", "GET", "200", 3)
					RecordErrorByComponent("api", "bad_request")
					RecordErrorByType("bad_request", "warning")
					RecordErrorByEndpoint("/student/process-frame", "POST", "bad_request")
					RecordErrorLatency("api", "bad_request", 1)
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.5)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestDisabledManager(t *testing.T) {
	Convey("Given a disabled global manager", t, func() {
		saved := globalManager
		globalManager = NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))
		defer func() { globalManager = saved }()

		Convey("When counters are recorded", func() {
			RecordFrameDuplicate()
			RecordDeliveryFailure()

			Convey("Then nothing is observed", func() {
				So(Enabled(), ShouldBeFalse)
				So(testutil.ToFloat64(globalManager.framesDuplicate), ShouldEqual, 0)
				So(testutil.ToFloat64(globalManager.deliveryFailures), ShouldEqual, 0)
			})
		})
	})
}

func TestConcurrentRecording(t *testing.T) {
	Convey("Given metrics recorded from many goroutines", t, func() {
		before := testutil.ToFloat64(globalManager.queueEnqueued)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordQueueEnqueue()
					RecordHTTPRequest("/health", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then no increments are lost", func() {
			So(testutil.ToFloat64(globalManager.queueEnqueued)-before, ShouldEqual, 1000)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordFrameDuplicate()
		families, err := GetRegistry().Gather()

		Convey("Then it only exposes service metrics", func() {
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "smartsession_"), ShouldBeTrue)
			}
		})
	})
}
