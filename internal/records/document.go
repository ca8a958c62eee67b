package records

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// QRRenderer renders a verification token as a PNG image
type QRRenderer interface {
	RenderPNG(token string) ([]byte, error)
}

// RenderPDF lays out a printable copy of p with its verification QR code.
// A nil renderer prints the token as text only.
func RenderPDF(p types.Prescription, qr QRRenderer) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(37, 99, 235)
	pdf.CellFormat(0, 10, "MedScript AI", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(100, 116, 139)
	pdf.CellFormat(0, 6, "Digital Prescription", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	addDetail(pdf, "Prescription", p.ID)
	addDetail(pdf, "Date", displayDate(p.Date))
	addDetail(pdf, "Doctor", p.DoctorName)
	addDetail(pdf, "Patient", p.PatientEmail)
	addDetail(pdf, "Diagnosis", p.Diagnosis)
	addDetail(pdf, "Status", string(p.Status))
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(240, 240, 240)
	for _, h := range []struct {
		title string
		width float64
	}{{"Medication", 50}, {"Dosage", 30}, {"Frequency", 25}, {"Duration", 25}, {"Instructions", 0}} {
		ln := 0
		if h.width == 0 {
			ln = 1
		}
		pdf.CellFormat(h.width, 8, h.title, "1", ln, "", true, 0, "")
	}

	pdf.SetFont("Arial", "", 10)
	for _, m := range p.Medications {
		pdf.CellFormat(50, 8, m.Name, "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 8, m.Dosage, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 8, m.Frequency, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 8, m.Duration, "1", 0, "", false, 0, "")
		pdf.CellFormat(0, 8, m.Instructions, "1", 1, "", false, 0, "")
	}

	if strings.TrimSpace(p.Notes) != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 5, "Notes: "+p.Notes, "", "L", false)
	}

	pdf.Ln(6)
	if qr != nil && p.QRCode != "" {
		png, err := qr.RenderPNG(p.QRCode)
		if err != nil {
			return nil, fmt.Errorf("failed to render verification code: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
		pdf.ImageOptions("qr", 15, pdf.GetY(), 35, 35, true, opts, 0, "")
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, p.QRCode, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, "Present this code at any pharmacy for verification", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate prescription PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addDetail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 7, label, "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, value, "1", 1, "", false, 0, "")
}

// displayDate trims the timestamp to its calendar date
func displayDate(iso string) string {
	if i := strings.IndexByte(iso, 'T'); i > 0 {
		return iso[:i]
	}
	return iso
}
