package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fixdesk/hub/internal/api/response"
	"github.com/fixdesk/hub/internal/api/validation"
	"github.com/fixdesk/hub/internal/huberrors"
	"github.com/fixdesk/hub/internal/models"
)

const (
	feedbackRecordedMessage = "Feedback recorded"
	feedbackPartialMessage  = "Feedback recorded; some solution ids were not found"
)

// SolutionsService defines the resolver operations the handlers need.
type SolutionsService interface {
	Resolve(ctx context.Context, problem string) ([]models.Solution, error)
	RecordFeedback(ctx context.Context, ids []models.SolutionID) (*models.FeedbackResult, error)
	GetSolution(ctx context.Context, id models.SolutionID) (*models.Solution, error)
}

// SolutionsHandler handles HTTP requests for solutions and feedback.
type SolutionsHandler struct {
	service SolutionsService
}

// NewSolutionsHandler creates a new solutions handler.
func NewSolutionsHandler(service SolutionsService) *SolutionsHandler {
	return &SolutionsHandler{service: service}
}

// Resolve handles POST /api/get-solutions
// @Summary Get solutions for a problem
// @Description Returns stored solutions ranked by success count, or a newly generated one
// @Tags Solutions
// @Accept json
// @Produce json
// @Param request body ResolveRequest true "Problem description"
// @Success 200 {object} ResolveResponse
// @Failure 400 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /api/get-solutions [post]
func (h *SolutionsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	h.resolve(w, r, &req)
}

// ResolveQuery handles GET /api/get-solutions?problem=...
func (h *SolutionsHandler) ResolveQuery(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := validation.DecodeQueryParams(r, &req); err != nil {
		response.RespondBadRequest(w, "Invalid query parameters")
		return
	}

	h.resolve(w, r, &req)
}

func (h *SolutionsHandler) resolve(w http.ResponseWriter, r *http.Request, req *models.ResolveRequest) {
	if err := validation.ValidateStruct(req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	solutions, err := h.service.Resolve(r.Context(), req.Problem)
	if err != nil {
		respondServiceError(w, r, "resolve", err)
		return
	}

	response.RespondJSON(w, http.StatusOK, models.ResolveResponse{Solutions: solutions})
}

// SubmitFeedback handles POST /api/submit-feedback
// @Summary Record success feedback
// @Description Increments the success count of each listed solution once per occurrence
// @Tags Solutions
// @Accept json
// @Produce json
// @Param request body FeedbackRequest true "Solution ids"
// @Success 200 {object} FeedbackResponse
// @Failure 400 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /api/submit-feedback [post]
func (h *SolutionsHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body: solutionIds must be a list of solution ids")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.RecordFeedback(r.Context(), req.SolutionIDs)
	if err != nil {
		respondServiceError(w, r, "submit feedback", err)
		return
	}

	msg := feedbackRecordedMessage
	if len(result.UnknownIDs) > 0 {
		msg = feedbackPartialMessage
	}

	response.RespondJSON(w, http.StatusOK, models.FeedbackResponse{
		Message:    msg,
		UnknownIDs: result.UnknownIDs,
	})
}

// Get handles GET /api/solutions/{id}
// @Summary Get a solution by ID
// @Tags Solutions
// @Produce json
// @Param id path string true "Solution ID"
// @Success 200 {object} Solution
// @Failure 400 {object} ProblemDetails "Invalid ID"
// @Failure 404 {object} ProblemDetails "Solution not found"
// @Router /api/solutions/{id} [get]
func (h *SolutionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSolutionID(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid solution ID")
		return
	}

	solution, err := h.service.GetSolution(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, "get solution", err)
		return
	}

	response.RespondJSON(w, http.StatusOK, solution)
}

// respondServiceError maps service errors to Problem Details. Store and unexpected errors are
// logged and answered with 500 without leaking driver messages.
func respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, huberrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, huberrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	case errors.Is(err, huberrors.ErrStore):
		slog.ErrorContext(r.Context(), "store failure", "op", op, "error", err)
		response.RespondInternalServerError(w, fmt.Sprintf("Failed to %s: the solution store is unavailable", op))
	default:
		slog.ErrorContext(r.Context(), "unexpected error", "op", op, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
	}
}
