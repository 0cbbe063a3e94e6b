package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/dailyscore/internal/tracker"
	"github.com/thebtf/dailyscore/pkg/models"
)

// Task and summary handlers are built per tracker so that accounts and
// guests share them. The caller's ID comes from the identity middleware.

// reviewRequest is the body of PUT /tasks/{id}.
type reviewRequest struct {
	Status string `json:"status"`
}

func handleCreateTask(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tracker.NewTask
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		created, err := t.CreateTask(r.Context(), userFromRequest(r), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, created)
	}
}

func handleTasksForDay(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := t.TasksForDay(r.Context(), userFromRequest(r), queryPtr(r, "date"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, tasks)
	}
}

func handlePendingReview(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := t.PendingReview(r.Context(), userFromRequest(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, tasks)
	}
}

func handleHistory(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := t.History(r.Context(), userFromRequest(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, tasks)
	}
}

func handleEditTask(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tracker.TaskEdit
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		task, err := t.EditTask(r.Context(), userFromRequest(r), chi.URLParam(r, "id"), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, task)
	}
}

func handleReviewTask(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		status, err := models.ParseReviewStatus(req.Status)
		if err != nil {
			respondError(w, r, err)
			return
		}
		task, err := t.ReviewTask(r.Context(), userFromRequest(r), chi.URLParam(r, "id"), status)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, task)
	}
}

func handleDeleteTask(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := t.DeleteTask(r.Context(), userFromRequest(r), chi.URLParam(r, "id")); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSummary(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := t.Summary(r.Context(), userFromRequest(r), queryPtr(r, "week"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, summary)
	}
}

// handleUpdatePoints runs the weekly settlement on demand.
func handleUpdatePoints(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := t.ForceSettle(r.Context(), userFromRequest(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, res)
	}
}

func handleStreaks(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streaks, err := t.Streaks(r.Context(), userFromRequest(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, streaks)
	}
}

func handleBadges(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		badges, err := t.Badges(r.Context(), userFromRequest(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, badges)
	}
}

func handleNextUpdate(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, t.NextUpdate())
	}
}
