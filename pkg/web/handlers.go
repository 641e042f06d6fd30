package web

import (
	"bytes"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gesture/pkg/capture"
	"github.com/teslashibe/go-gesture/pkg/clipio"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/reference"
	"github.com/teslashibe/go-gesture/pkg/scoring"
)

// Status is the /api/status payload.
type Status struct {
	State         string        `json:"state"`
	Recorder      capture.Stats `json:"recorder"`
	Attempts      int           `json:"attempts"`
	CachedClips   int           `json:"cached_clips"`
	LastOutcome   string        `json:"last_outcome,omitempty"`
	LastScore     float64       `json:"last_score,omitempty"`
	LastAttemptAt string        `json:"last_attempt_at,omitempty"`
}

// AttemptEntry summarizes one graded attempt.
type AttemptEntry struct {
	Reference string         `json:"reference"`
	Frames    int            `json:"frames"`
	Result    scoring.Result `json:"result"`
	At        string         `json:"at"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// handleStatus returns recorder state and session totals
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.session == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no active session",
		})
	}

	history := s.session.History()
	st := Status{
		State:       s.session.Recorder().State().String(),
		Recorder:    s.session.Recorder().Stats(),
		Attempts:    len(history),
		CachedClips: s.session.Loader().Cache().Len(),
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		st.LastOutcome = last.Result.Outcome()
		st.LastScore = last.Result.Score
		st.LastAttemptAt = last.At.Format(time.RFC3339)
	}
	return c.JSON(st)
}

func (s *Server) handleAttempts(c *fiber.Ctx) error {
	if s.session == nil {
		return c.JSON([]AttemptEntry{})
	}
	history := s.session.History()
	out := make([]AttemptEntry, len(history))
	for i, a := range history {
		out[i] = AttemptEntry{
			Reference: a.Reference.String(),
			Frames:    a.User.Len(),
			Result:    a.Result,
			At:        a.At.Format(time.RFC3339),
		}
	}
	return c.JSON(out)
}

// handleGrade scores an uploaded JSON clip against the reference named by
// the asset, fps and target query parameters.
func (s *Server) handleGrade(c *fiber.Ctx) error {
	if s.session == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no active session",
		})
	}

	fps, err := strconv.ParseFloat(c.Query("fps", "12"), 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid fps"})
	}
	key := reference.Key{
		AssetID: c.Query("asset"),
		Src:     c.Query("src"),
		Target:  landmark.Target(c.Query("target", string(landmark.TargetHands))),
		FPS:     fps,
	}
	if err := key.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	clip, err := clipio.Decode(bytes.NewReader(c.Body()), clipio.FormatJSON)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	a, err := s.session.Grade(c.UserContext(), key, clip)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, reference.ErrInvalidKey):
			status = fiber.StatusBadRequest
		case errors.Is(err, reference.ErrNoLandmarks):
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(a.Result)
}
