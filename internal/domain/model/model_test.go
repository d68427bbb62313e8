package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseGaze(t *testing.T) {
	Convey("Given provider gaze strings", t, func() {
		Convey("Known directions parse", func() {
			for _, s := range []string{"CENTER", "LEFT", "RIGHT", "UP", "DOWN"} {
				g, ok := model.ParseGaze(s)
				So(ok, ShouldBeTrue)
				So(string(g), ShouldEqual, s)
			}
		})

		Convey("Unknown directions fall back to CENTER", func() {
			g, ok := model.ParseGaze("SIDEWAYS")
			So(ok, ShouldBeFalse)
			So(g, ShouldEqual, model.GazeCenter)

			g, ok = model.ParseGaze("left")
			So(ok, ShouldBeFalse)
			So(g, ShouldEqual, model.GazeCenter)
		})
	})
}

func TestSubjectStateJSON(t *testing.T) {
	Convey("Given a subject state", t, func() {
		st := model.SubjectState{
			SubjectID:      "s1",
			SessionID:      "room-1",
			Status:         model.StatusConfused,
			Alert:          model.AlertNone,
			FaceCount:      1,
			ConfusionScore: 70,
			LastUpdated:    time.Unix(1700000000, 500_000_000),
		}

		Convey("When encoded it uses the dashboard field names", func() {
			b, err := json.Marshal(st)
			So(err, ShouldBeNil)

			var m map[string]any
			So(json.Unmarshal(b, &m), ShouldBeNil)
			So(m["student_id"], ShouldEqual, "s1")
			So(m["session_id"], ShouldEqual, "room-1")
			So(m["status"], ShouldEqual, "CONFUSED")
			So(m["alert"], ShouldEqual, "NONE")
			So(m["face_count"], ShouldEqual, 1)
			So(m["confusion_score"], ShouldEqual, 70)
			So(m["last_updated"], ShouldAlmostEqual, 1700000000.5, 0.001)
		})

		Convey("When decoded back the content is preserved", func() {
			b, err := json.Marshal(st)
			So(err, ShouldBeNil)

			var got model.SubjectState
			So(json.Unmarshal(b, &got), ShouldBeNil)
			So(got.SameContent(st), ShouldBeTrue)
			So(got.LastUpdated.Sub(st.LastUpdated), ShouldBeLessThan, time.Millisecond)
		})

		Convey("SameContent ignores the timestamp only", func() {
			other := st
			other.LastUpdated = st.LastUpdated.Add(time.Hour)
			So(st.SameContent(other), ShouldBeTrue)

			other.Alert = model.AlertNoFace
			So(st.SameContent(other), ShouldBeFalse)
		})
	})
}
