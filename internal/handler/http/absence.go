package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/storage"
	"github.com/cmlabs-hris/training-center-backend-go/internal/service/file"
	"github.com/go-chi/chi/v5"
)

// Multipart overhead on top of the attachments themselves.
const multipartSlack = 1 << 20

type AbsenceHandler interface {
	Validate(w http.ResponseWriter, r *http.Request)
	SubmitLeave(w http.ResponseWriter, r *http.Request)
	SubmitPermission(w http.ResponseWriter, r *http.Request)
	ListMy(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	Refuse(w http.ResponseWriter, r *http.Request)
	Withdraw(w http.ResponseWriter, r *http.Request)
	Certificate(w http.ResponseWriter, r *http.Request)
	Attachment(w http.ResponseWriter, r *http.Request)

	GetMyQuota(w http.ResponseWriter, r *http.Request)
	GetUserQuota(w http.ResponseWriter, r *http.Request)
}

type AbsenceHandlerImpl struct {
	absenceService absence.Service
	fileService    file.FileService
	policy         absence.Policy
	now            func() time.Time
}

func NewAbsenceHandler(absenceService absence.Service, fileService file.FileService, policy absence.Policy) AbsenceHandler {
	return &AbsenceHandlerImpl{
		absenceService: absenceService,
		fileService:    fileService,
		policy:         policy,
		now:            time.Now,
	}
}

// validateRequest accepts either submission payload, tagged by kind.
type validateRequest struct {
	Kind absence.Kind `json:"kind"`
}

// Validate implements AbsenceHandler. Nothing is reserved.
func (h *AbsenceHandlerImpl) Validate(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, multipartSlack))
	if err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	var envelope validateRequest
	if err := json.Unmarshal(body, &envelope); err != nil {
		slog.Error("Validate decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	var candidate absence.AbsenceRequest
	switch envelope.Kind {
	case absence.KindLeave:
		var req absence.SubmitLeaveRequest
		if err := json.Unmarshal(body, &req); err != nil {
			response.BadRequest(w, "Invalid request format", nil)
			return
		}
		if err := req.Validate(); err != nil {
			response.HandleError(w, err)
			return
		}
		candidate = req.ToCandidate(req.UserID)
	case absence.KindPermission:
		var req absence.SubmitPermissionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			response.BadRequest(w, "Invalid request format", nil)
			return
		}
		if err := req.Validate(); err != nil {
			response.HandleError(w, err)
			return
		}
		candidate = req.ToCandidate(req.UserID, h.absenceService.Location())
	default:
		response.ValidationError(w, map[string]string{"kind": "kind must be one of: leave, permission"})
		return
	}

	validated, err := h.absenceService.Validate(r.Context(), actor, candidate)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Absence request is valid", absence.NewAbsenceResponse(validated, h.absenceService.Location()))
}

// SubmitLeave implements AbsenceHandler. Accepts JSON, or multipart with the
// JSON payload in "data" and files in "attachments".
func (h *AbsenceHandlerImpl) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var req absence.SubmitLeaveRequest
	attachments, ok := h.decodeSubmission(w, r, actor, &req)
	if !ok {
		return
	}

	if err := req.Validate(); err != nil {
		h.discardAttachments(r.Context(), attachments)
		response.HandleError(w, err)
		return
	}
	req.Attachments = attachments

	h.submit(w, r, actor, req.ToCandidate(req.UserID))
}

// SubmitPermission implements AbsenceHandler.
func (h *AbsenceHandlerImpl) SubmitPermission(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var req absence.SubmitPermissionRequest
	attachments, ok := h.decodeSubmission(w, r, actor, &req)
	if !ok {
		return
	}

	if err := req.Validate(); err != nil {
		h.discardAttachments(r.Context(), attachments)
		response.HandleError(w, err)
		return
	}
	req.Attachments = attachments

	h.submit(w, r, actor, req.ToCandidate(req.UserID, h.absenceService.Location()))
}

func (h *AbsenceHandlerImpl) submit(w http.ResponseWriter, r *http.Request, actor absence.Actor, candidate absence.AbsenceRequest) {
	created, err := h.absenceService.Submit(r.Context(), actor, candidate)
	if err != nil {
		h.discardAttachments(r.Context(), candidate.Attachments)
		slog.Warn("Absence submission rejected", "user_id", actor.UserID, "kind", candidate.Kind, "error", err)
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Absence request submitted successfully", absence.NewAbsenceResponse(created, h.absenceService.Location()))
}

// decodeSubmission fills dst from the body and stores any uploaded files.
// It writes the error response itself and reports false on failure.
func (h *AbsenceHandlerImpl) decodeSubmission(w http.ResponseWriter, r *http.Request, actor absence.Actor, dst interface{}) ([]absence.Attachment, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			slog.Error("Submission decode error", "error", err)
			response.BadRequest(w, "Invalid request format", nil)
			return nil, false
		}
		return nil, true
	}

	maxBody := h.policy.MaxAttachmentBytes*int64(max(h.policy.MaxAttachments, 1)) + multipartSlack
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(multipartSlack); err != nil {
		slog.Error("Failed to parse multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.HandleError(w, absence.AttachmentRejected("attachments", "attachments exceed the maximum allowed size"))
			return nil, false
		}
		response.BadRequest(w, "Failed to parse form data", nil)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	dataJSON := r.FormValue("data")
	if dataJSON == "" {
		response.BadRequest(w, "Field 'data' is required", nil)
		return nil, false
	}
	if err := json.Unmarshal([]byte(dataJSON), dst); err != nil {
		slog.Error("Failed to unmarshal JSON data", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return nil, false
	}

	headers := r.MultipartForm.File["attachments"]
	attachments := make([]absence.Attachment, 0, len(headers))
	for i, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.discardAttachments(r.Context(), attachments)
			response.BadRequest(w, "Invalid file upload", nil)
			return nil, false
		}
		att, err := h.fileService.UploadAbsenceAttachment(r.Context(), actor.UserID, f, fh.Filename, h.policy.MaxAttachmentBytes)
		f.Close()
		if err != nil {
			h.discardAttachments(r.Context(), attachments)
			if errors.Is(err, storage.ErrFileTooLarge) {
				response.HandleError(w, absence.AttachmentRejected(fmt.Sprintf("attachments[%d]", i), err.Error()))
				return nil, false
			}
			response.HandleError(w, err)
			return nil, false
		}
		attachments = append(attachments, att)
	}
	return attachments, true
}

// discardAttachments removes files stored for a submission that failed.
func (h *AbsenceHandlerImpl) discardAttachments(ctx context.Context, attachments []absence.Attachment) {
	for _, att := range attachments {
		if err := h.fileService.DeleteFile(ctx, att.Reference); err != nil {
			slog.Warn("Failed to delete orphaned attachment", "reference", att.Reference, "error", err)
		}
	}
}

// ListMy implements AbsenceHandler.
func (h *AbsenceHandlerImpl) ListMy(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	req := listRequestFromQuery(r)
	req.UserID = actor.UserID
	h.list(w, r, actor, req)
}

// List implements AbsenceHandler.
func (h *AbsenceHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	h.list(w, r, actor, listRequestFromQuery(r))
}

func (h *AbsenceHandlerImpl) list(w http.ResponseWriter, r *http.Request, actor absence.Actor, req absence.ListRequest) {
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}
	filter := req.ToFilter()

	requests, total, err := h.absenceService.List(r.Context(), actor, filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	loc := h.absenceService.Location()
	items := make([]absence.AbsenceResponse, 0, len(requests))
	for _, req := range requests {
		items = append(items, absence.NewAbsenceResponse(req, loc))
	}

	totalPages := int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize))
	showing := "0 results"
	if len(items) > 0 {
		from := (filter.Page-1)*filter.PageSize + 1
		showing = fmt.Sprintf("%d-%d of %d results", from, from+len(items)-1, total)
	}

	response.Success(w, absence.ListAbsenceResponse{
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
		Showing:    showing,
		Requests:   items,
	})
}

func listRequestFromQuery(r *http.Request) absence.ListRequest {
	q := r.URL.Query()
	return absence.ListRequest{
		Kind:     q.Get("kind"),
		Status:   q.Get("status"),
		UserID:   q.Get("user_id"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Page:     getIntQueryParam(r, "page", 1),
		PageSize: getIntQueryParam(r, "page_size", 20),
	}
}

// Get implements AbsenceHandler.
func (h *AbsenceHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	req, err := h.absenceService.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, absence.NewAbsenceResponse(req, h.absenceService.Location()))
}

// Approve implements AbsenceHandler.
func (h *AbsenceHandlerImpl) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true, "")
}

// Refuse implements AbsenceHandler.
func (h *AbsenceHandlerImpl) Refuse(w http.ResponseWriter, r *http.Request) {
	var req absence.RefuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Error("Refuse decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}
	h.decide(w, r, false, req.Reason)
}

func (h *AbsenceHandlerImpl) decide(w http.ResponseWriter, r *http.Request, approve bool, reason string) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	decided, err := h.absenceService.Decide(r.Context(), actor, chi.URLParam(r, "id"), approve, reason)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	message := "Absence request approved successfully"
	if !approve {
		message = "Absence request refused"
	}
	response.SuccessWithMessage(w, message, absence.NewAbsenceResponse(decided, h.absenceService.Location()))
}

// Withdraw implements AbsenceHandler.
func (h *AbsenceHandlerImpl) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	withdrawn, err := h.absenceService.Withdraw(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Absence request withdrawn", absence.NewAbsenceResponse(withdrawn, h.absenceService.Location()))
}

// Certificate implements AbsenceHandler.
func (h *AbsenceHandlerImpl) Certificate(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	pdf, err := h.absenceService.Certificate(r.Context(), actor, id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.File(w, "application/pdf", fmt.Sprintf("attestation-%s.pdf", id), pdf)
}

// Attachment implements AbsenceHandler. It streams the n-th stored document
// of a request the caller may read.
func (h *AbsenceHandlerImpl) Attachment(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	req, err := h.absenceService.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(req.Attachments) {
		response.NotFound(w, "Attachment not found")
		return
	}
	att := req.Attachments[index]

	rc, err := h.fileService.OpenFile(r.Context(), att.Reference)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.FileName}))
	w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Attachment download interrupted", "request_id", req.ID, "error", err)
	}
}

// GetMyQuota implements AbsenceHandler.
func (h *AbsenceHandlerImpl) GetMyQuota(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	h.quota(w, r, actor, actor.UserID)
}

// GetUserQuota implements AbsenceHandler.
func (h *AbsenceHandlerImpl) GetUserQuota(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	h.quota(w, r, actor, chi.URLParam(r, "userID"))
}

// quota returns the current summary, or a single ledger when period_kind
// and period_key are given.
func (h *AbsenceHandlerImpl) quota(w http.ResponseWriter, r *http.Request, actor absence.Actor, userID string) {
	kind := absence.PeriodKind(strings.TrimSpace(r.URL.Query().Get("period_kind")))
	key := strings.TrimSpace(r.URL.Query().Get("period_key"))

	if kind == "" && key == "" {
		summary, err := h.absenceService.Summary(r.Context(), actor, userID, h.now())
		if err != nil {
			response.HandleError(w, err)
			return
		}
		response.Success(w, absence.NewQuotaSummaryResponse(summary))
		return
	}

	if !kind.IsValid() {
		response.ValidationError(w, map[string]string{"period_kind": "period_kind must be one of: annualLeave, monthlyPermission"})
		return
	}
	if _, _, err := absence.PeriodBounds(kind, key); err != nil {
		response.ValidationError(w, map[string]string{"period_key": err.Error()})
		return
	}

	ledger, err := h.absenceService.Ledger(r.Context(), actor, userID, kind, key)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, absence.NewQuotaLedgerResponse(ledger))
}
