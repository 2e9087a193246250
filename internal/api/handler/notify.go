package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/albapepper/hifz-notify/internal/api/respond"
	"github.com/albapepper/hifz-notify/internal/jobs"
)

const maxPayloadBytes = 1 << 20

// EventWebhook handles one database-change payload.
// @Summary Database change webhook
// @Description Notifies the student and parent about an inserted sticker, trophy, achievement, homework, attendance or session row.
// @Tags notifications
// @Accept json
// @Produce json
// @Param payload body jobs.EventPayload true "Database change payload"
// @Success 200 {object} jobs.EventResult
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /webhooks/events [post]
func (h *Handler) EventWebhook(w http.ResponseWriter, r *http.Request) {
	var payload jobs.EventPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Request body is not a valid event payload", err.Error())
		return
	}

	res, err := h.events.Handle(r.Context(), payload)
	switch {
	case errors.Is(err, jobs.ErrUnknownTable):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "UNKNOWN_TABLE", "Table is not mapped to a notification category", payload.Table)
		return
	case err != nil:
		h.logger.Error("event notification failed", "table", payload.Table, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "NOTIFICATION_FAILED", "Event notification failed", err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// RunHomeworkReminders runs the homework reminder driver once.
// @Summary Run homework reminders
// @Description Sends due-tomorrow homework reminders for schools whose local time is within the 18:00 window.
// @Tags jobs
// @Produce json
// @Success 200 {object} jobs.HomeworkReminderResult
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /jobs/homework-reminders [post]
func (h *Handler) RunHomeworkReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.homework.Run(r.Context())
	if err != nil {
		h.logger.Error("homework reminders failed", "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "JOB_FAILED", "Homework reminder run failed", err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// RunTeacherSummaries runs the teacher summary driver once.
// @Summary Run teacher daily summaries
// @Description Sends the morning roster summary for schools whose local time is within the 07:00 window.
// @Tags jobs
// @Produce json
// @Success 200 {object} jobs.TeacherSummaryResult
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /jobs/teacher-summaries [post]
func (h *Handler) RunTeacherSummaries(w http.ResponseWriter, r *http.Request) {
	res, err := h.summaries.Run(r.Context())
	if err != nil {
		h.logger.Error("teacher summaries failed", "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "JOB_FAILED", "Teacher summary run failed", err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}
