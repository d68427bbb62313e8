package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Session   string        // session_id stamped on every frame
	Subjects  int           // Subjects per scenario
	Frames    int           // Frames sent by each subject
	Interval  time.Duration // Spacing between one subject's frames
	Workers   int           // Subjects streaming at once
	Timeout   time.Duration // HTTP request timeout
	Scenarios []string      // Scenario names; empty runs all
	Verbose   bool          // Log every frame response
}

// Stats holds run statistics.
type Stats struct {
	FramesSubmitted  int
	FramesSuccessful int
	FramesFailed     int
	SubjectsVerified int
	Mismatches       int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
