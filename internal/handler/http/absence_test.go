package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func leavePayload(start, end string) map[string]interface{} {
	return map[string]interface{}{
		"category":      "annuel",
		"start_date":    start,
		"end_date":      end,
		"justification": "summer holidays",
	}
}

func (f *apiFixture) submitLeave(t *testing.T, token, start, end string) string {
	t.Helper()
	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/leave", token, leavePayload(start, end))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	return data["id"].(string)
}

func (f *apiFixture) annualLedger(t *testing.T, token string) map[string]interface{} {
	t.Helper()
	w := f.doJSON(t, http.MethodGet, "/api/v1/quotas/my?period_kind=annualLeave&period_key=2025", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeBody(t, w)["data"].(map[string]interface{})
}

func multipartSubmission(t *testing.T, payload interface{}, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("data", string(data)))

	for name, content := range files {
		part, err := mw.CreateFormFile("attachments", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestAbsenceHandler_SubmitApproveLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)
	admin := f.token(t, testAdmin)

	id := f.submitLeave(t, trainee, "2025-03-01", "2025-03-15")

	ledger := f.annualLedger(t, trainee)
	assert.Equal(t, "15", ledger["reserved"])
	assert.Equal(t, "15", ledger["remaining"])

	// Apprenants cannot decide.
	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/approve", trainee, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "approved", data["status"])
	assert.Equal(t, testAdmin.ID, data["decided_by"])

	ledger = f.annualLedger(t, trainee)
	assert.Equal(t, "15", ledger["consumed"])
	assert.Equal(t, "0", ledger["reserved"])
	assert.Equal(t, "15", ledger["remaining"])

	// A second decision is a conflict.
	w = f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/refuse", admin, map[string]string{"reason": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_DECIDED", errorCode(t, decodeBody(t, w)))

	// The approved request has a certificate.
	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+id+"/certificate", trainee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestAbsenceHandler_RefuseRequiresReason(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)
	admin := f.token(t, testAdmin)

	id := f.submitLeave(t, trainee, "2025-03-01", "2025-03-15")

	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/refuse", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "MISSING_FIELD", errorCode(t, decodeBody(t, w)))

	w = f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/refuse", admin, map[string]string{"reason": "policy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "refused", data["status"])
	assert.Equal(t, "policy", data["refusal_reason"])

	ledger := f.annualLedger(t, trainee)
	assert.Equal(t, "30", ledger["remaining"])

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+id+"/certificate", trainee, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CERTIFICATE_UNAVAILABLE", errorCode(t, decodeBody(t, w)))
}

func TestAbsenceHandler_Withdraw(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)

	id := f.submitLeave(t, trainee, "2025-03-01", "2025-03-12")

	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/withdraw", f.token(t, testNewcomer), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.doJSON(t, http.MethodPost, "/api/v1/absences/"+id+"/withdraw", trainee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "withdrawn", decodeBody(t, w)["data"].(map[string]interface{})["status"])

	assert.Equal(t, "30", f.annualLedger(t, trainee)["remaining"])
}

func TestAbsenceHandler_SubmitRejections(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		payload    map[string]interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "leave shorter than ten days",
			path:       "/api/v1/absences/leave",
			payload:    leavePayload("2025-03-01", "2025-03-09"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "DURATION_OUT_OF_BOUNDS",
		},
		{
			name:       "end before start",
			path:       "/api/v1/absences/leave",
			payload:    leavePayload("2025-03-20", "2025-03-01"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_RANGE",
		},
		{
			name: "missing justification",
			path: "/api/v1/absences/leave",
			payload: map[string]interface{}{
				"category":   "annuel",
				"start_date": "2025-03-01",
				"end_date":   "2025-03-15",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "MISSING_FIELD",
		},
		{
			name:       "leave longer than the allotment",
			path:       "/api/v1/absences/leave",
			payload:    leavePayload("2025-03-01", "2025-04-05"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INSUFFICIENT_QUOTA",
		},
		{
			name: "malformed date",
			path: "/api/v1/absences/leave",
			payload: map[string]interface{}{
				"category":      "annuel",
				"start_date":    "01/03/2025",
				"end_date":      "2025-03-15",
				"justification": "x",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "permission across midnight",
			path: "/api/v1/absences/permission",
			payload: map[string]interface{}{
				"category":      "personnel",
				"date":          "2025-03-10",
				"start_time":    "14:00",
				"end_time":      "09:00",
				"justification": "appointment",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_RANGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil)

			w := f.doJSON(t, http.MethodPost, tt.path, f.token(t, testTrainee), tt.payload)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			resp := decodeBody(t, w)
			assert.False(t, resp["success"].(bool))
			assert.Equal(t, tt.wantCode, errorCode(t, resp))
		})
	}
}

func TestAbsenceHandler_InsufficientQuotaReportsRemaining(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)

	f.submitLeave(t, trainee, "2025-03-01", "2025-03-20")

	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/leave", trainee, leavePayload("2025-06-01", "2025-06-12"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	errObj := decodeBody(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "INSUFFICIENT_QUOTA", errObj["code"])
	assert.Equal(t, "10", errObj["details"].(map[string]interface{})["remaining"])
}

func TestAbsenceHandler_ValidateDoesNotReserve(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)

	payload := map[string]interface{}{
		"kind":          "permission",
		"category":      "professionnel",
		"date":          "2025-03-10",
		"start_time":    "09:00",
		"end_time":      "13:00",
		"justification": "conference",
	}
	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/validate", trainee, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "0.5", data["requested_units"])

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/my", trainee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeBody(t, w)["data"].(map[string]interface{})["total_count"])

	w = f.doJSON(t, http.MethodPost, "/api/v1/absences/validate", trainee, map[string]interface{}{"kind": "holiday"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAbsenceHandler_MultipartAttachments(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

	body, contentType := multipartSubmission(t, leavePayload("2025-03-01", "2025-03-15"), map[string][]byte{"certificat.pdf": pdf})
	w := f.do(t, http.MethodPost, "/api/v1/absences/leave", trainee, body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeBody(t, w)["data"].(map[string]interface{})
	attachments := created["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "certificat.pdf", att["file_name"])
	assert.Equal(t, "application/pdf", att["content_type"])
	assert.Equal(t, 1, f.storedFiles(t))

	id := created["id"].(string)
	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+id+"/attachments/0", trainee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, pdf, w.Body.Bytes())

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+id+"/attachments/1", trainee, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+id+"/attachments/0", f.token(t, testNewcomer), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A rejected submission leaves no file behind.
	body, contentType = multipartSubmission(t, leavePayload("2025-06-01", "2025-06-12"), map[string][]byte{"notes.txt": []byte("plain text notes")})
	w = f.do(t, http.MethodPost, "/api/v1/absences/leave", trainee, body, contentType)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "ATTACHMENT_REJECTED", errorCode(t, decodeBody(t, w)))
	assert.Equal(t, 1, f.storedFiles(t))
}

func TestAbsenceHandler_ListScopes(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)
	newcomer := f.token(t, testNewcomer)
	admin := f.token(t, testAdmin)

	mine := f.submitLeave(t, trainee, "2025-03-01", "2025-03-12")
	f.submitLeave(t, newcomer, "2025-03-01", "2025-03-12")

	w := f.doJSON(t, http.MethodGet, "/api/v1/absences/my", trainee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["total_count"])
	assert.Equal(t, "1-1 of 1 results", data["showing"])

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences", trainee, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences?status=pending&page_size=1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = decodeBody(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["total_count"])
	assert.EqualValues(t, 2, data["total_pages"])

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences?status=unknown", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+mine, newcomer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/v1/absences/"+mine, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAbsenceHandler_Quotas(t *testing.T) {
	f := newAPIFixture(t, nil)
	trainee := f.token(t, testTrainee)
	admin := f.token(t, testAdmin)

	w := f.doJSON(t, http.MethodGet, "/api/v1/quotas/my", trainee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "30", data["annual_leave"].(map[string]interface{})["remaining"])
	assert.Equal(t, "5", data["monthly_permission"].(map[string]interface{})["remaining"])

	w = f.doJSON(t, http.MethodGet, "/api/v1/quotas/my?period_kind=annualLeave&period_key=March", trainee, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/v1/quotas/"+testTrainee.ID, trainee, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/v1/quotas/"+testTrainee.ID+"?period_kind=monthlyPermission&period_key=2025-03", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2025-03", decodeBody(t, w)["data"].(map[string]interface{})["period_key"])
}

func TestAbsenceHandler_SubmitIsRateLimited(t *testing.T) {
	f := newAPIFixture(t, middleware.NewUserRateLimiter(rate.Limit(0.001), 1))
	trainee := f.token(t, testTrainee)

	f.submitLeave(t, trainee, "2025-03-01", "2025-03-12")

	w := f.doJSON(t, http.MethodPost, "/api/v1/absences/leave", trainee, leavePayload("2025-06-01", "2025-06-12"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Buckets are per user.
	f.submitLeave(t, f.token(t, testNewcomer), "2025-03-01", "2025-03-12")
}
