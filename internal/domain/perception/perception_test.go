package perception_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/internal/domain/perception"
	. "github.com/smartystreets/goconvey/convey"
)

func TestJSONProvider(t *testing.T) {
	Convey("Given a JSON provider", t, func() {
		p := perception.NewJSONProvider()
		ctx := context.Background()

		Convey("When the payload is complete", func() {
			obs, err := p.Analyze(ctx, []byte(`{"face_count":1,"metrics":{"gaze":"LEFT","brow":0.5,"smile":0.1}}`))

			Convey("Then it is decoded as given", func() {
				So(err, ShouldBeNil)
				So(obs.FaceCount, ShouldEqual, 1)
				So(obs.Metrics.Gaze, ShouldEqual, model.GazeLeft)
				So(obs.Metrics.Brow, ShouldEqual, 0.5)
				So(obs.Metrics.Smile, ShouldEqual, 0.1)
			})
		})

		Convey("When the metrics bundle is missing", func() {
			obs, err := p.Analyze(ctx, []byte(`{"face_count":0}`))

			Convey("Then defaults are substituted", func() {
				So(err, ShouldBeNil)
				So(obs.FaceCount, ShouldEqual, 0)
				So(obs.Metrics, ShouldResemble, model.DefaultMetrics())
			})
		})

		Convey("When the metrics bundle is structurally invalid", func() {
			obs, err := p.Analyze(ctx, []byte(`{"face_count":1,"metrics":[1,2,3]}`))

			Convey("Then defaults are substituted and the frame still succeeds", func() {
				So(err, ShouldBeNil)
				So(obs.Metrics, ShouldResemble, model.DefaultMetrics())
			})
		})

		Convey("When individual fields are malformed", func() {
			obs, err := p.Analyze(ctx, []byte(`{"face_count":1,"metrics":{"gaze":"SIDEWAYS","brow":"high","smile":0.7}}`))

			Convey("Then only those fields fall back", func() {
				So(err, ShouldBeNil)
				So(obs.Metrics.Gaze, ShouldEqual, model.GazeCenter)
				So(obs.Metrics.Brow, ShouldEqual, 0.0)
				So(obs.Metrics.Smile, ShouldEqual, 0.7)
			})
		})

		Convey("When face_count is missing", func() {
			_, err := p.Analyze(ctx, []byte(`{"metrics":{"gaze":"CENTER"}}`))

			Convey("Then it fails closed", func() {
				So(errors.Is(err, perception.ErrProviderFailure), ShouldBeTrue)
			})
		})

		Convey("When face_count is negative or fractional", func() {
			_, errNeg := p.Analyze(ctx, []byte(`{"face_count":-1}`))
			_, errFrac := p.Analyze(ctx, []byte(`{"face_count":1.5}`))

			Convey("Then both are provider failures", func() {
				So(errors.Is(errNeg, perception.ErrProviderFailure), ShouldBeTrue)
				So(errors.Is(errFrac, perception.ErrProviderFailure), ShouldBeTrue)
			})
		})

		Convey("When the payload is not JSON", func() {
			_, err := p.Analyze(ctx, []byte(`data:image/jpeg;base64,AAAA`))

			Convey("Then it is a provider failure", func() {
				So(errors.Is(err, perception.ErrProviderFailure), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := p.Analyze(cctx, []byte(`{"face_count":1}`))

			Convey("Then it reports both the failure and the cause", func() {
				So(errors.Is(err, perception.ErrProviderFailure), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestDecodeMetrics(t *testing.T) {
	Convey("Given raw metrics bundles", t, func() {
		Convey("A null bundle is not malformed", func() {
			raw := json.RawMessage(`null`)
			m, malformed := perception.DecodeMetrics(&raw)
			So(malformed, ShouldBeFalse)
			So(m, ShouldResemble, model.DefaultMetrics())
		})

		Convey("Out-of-range numbers are kept", func() {
			raw := json.RawMessage(`{"brow":1.7,"smile":-0.2}`)
			m, malformed := perception.DecodeMetrics(&raw)
			So(malformed, ShouldBeFalse)
			So(m.Brow, ShouldEqual, 1.7)
			So(m.Smile, ShouldEqual, -0.2)
		})

		Convey("A wrong-typed gaze is flagged", func() {
			raw := json.RawMessage(`{"gaze":3}`)
			m, malformed := perception.DecodeMetrics(&raw)
			So(malformed, ShouldBeTrue)
			So(m.Gaze, ShouldEqual, model.GazeCenter)
		})
	})
}

func TestProviderFunc(t *testing.T) {
	Convey("Given a provider func", t, func() {
		boom := errors.New("detector crashed")
		p := perception.ProviderFunc(func(context.Context, []byte) (model.Observation, error) {
			return model.Observation{}, boom
		})

		_, err := p.Analyze(context.Background(), nil)
		So(err, ShouldEqual, boom)
	})
}
