package absence

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/jung-kurt/gofpdf"
)

// CertificateRenderer produces the absence certificate handed to a user
// once a request has been approved.
type CertificateRenderer struct {
	loc *time.Location
}

func NewCertificateRenderer(loc *time.Location) *CertificateRenderer {
	return &CertificateRenderer{loc: loc}
}

// CertificateData is everything printed on a certificate.
type CertificateData struct {
	Request     absence.AbsenceRequest
	HolderName  string
	HolderEmail string
	DeciderName string
	IssuedAt    time.Time
}

func (c *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	r := data.Request

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Absence certificate %s", r.ID), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(certificateTitle(r.Kind)), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	line := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(50, 8, tr(label))
		pdf.SetFont("Helvetica", "", 12)
		pdf.Cell(0, 8, tr(value))
		pdf.Ln(8)
	}

	line("Reference:", r.ID)
	line("Holder:", data.HolderName)
	if data.HolderEmail != "" {
		line("Email:", data.HolderEmail)
	}
	line("Category:", string(r.Category))
	if r.Kind == absence.KindLeave {
		line("From:", r.Period.Start.Format("02/01/2006"))
		line("To:", r.Period.End.Format("02/01/2006"))
		line("Duration:", fmt.Sprintf("%s day(s)", r.RequestedUnits))
	} else {
		start, end := r.Period.Start.In(c.loc), r.Period.End.In(c.loc)
		line("Date:", start.Format("02/01/2006"))
		line("Time:", fmt.Sprintf("%s - %s", start.Format("15:04"), end.Format("15:04")))
		line("Charged:", fmt.Sprintf("%s day(s)", r.RequestedUnits))
	}
	line("Status:", string(r.Status))
	if r.DecidedAt != nil {
		line("Approved on:", r.DecidedAt.In(c.loc).Format("02/01/2006 15:04"))
	}
	if data.DeciderName != "" {
		line("Approved by:", data.DeciderName)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, tr(fmt.Sprintf("Issued on %s. This document certifies that the absence above was approved by the training center administration.",
		data.IssuedAt.In(c.loc).Format("02/01/2006 15:04"))), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func certificateTitle(kind absence.Kind) string {
	if kind == absence.KindPermission {
		return "Permission certificate"
	}
	return "Leave certificate"
}

// Certificate implements absence.Service.
func (s *AbsenceServiceImpl) Certificate(ctx context.Context, actor absence.Actor, requestID string) ([]byte, error) {
	req, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.Consumes() {
		return nil, absence.ErrCertificateUnavailable
	}

	data := CertificateData{Request: req, HolderName: req.UserID, IssuedAt: s.now()}
	if s.users != nil {
		if holder, err := s.users.GetByID(ctx, req.UserID); err == nil {
			data.HolderName = displayName(holder)
			data.HolderEmail = holder.Email
		}
		if req.DecidedBy != nil {
			if decider, err := s.users.GetByID(ctx, *req.DecidedBy); err == nil {
				data.DeciderName = displayName(decider)
			}
		}
	}
	return s.certificates.Render(data)
}

func displayName(u user.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
