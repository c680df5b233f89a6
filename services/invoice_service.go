package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	config "github.com/edusoko/course_market/configs"
	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/models"
	"github.com/edusoko/course_market/notifications"
	"github.com/edusoko/course_market/utils"
	"github.com/google/uuid"
)

// GenerateInvoiceForPayment renders and uploads a PDF invoice for a settled
// sale, then stores the URL on the Payment and Transaction records. Runs
// outside the settlement transaction: a failure here is logged and the
// settlement stands.
func GenerateInvoiceForPayment(payment models.Payment, txn models.Transaction) {
	var student models.User
	if err := database.DB.First(&student, "id = ?", payment.StudentID).Error; err != nil {
		log.Printf("🔥 Failed to load student %s for invoice: %v", payment.StudentID, err)
		return
	}
	var course models.Course
	if err := database.DB.First(&course, "id = ?", payment.CourseID).Error; err != nil {
		log.Printf("🔥 Failed to load course %s for invoice: %v", payment.CourseID, err)
		return
	}

	sendSaleEmails(student, course, payment)

	invoiceNumber, err := utils.GenerateInvoiceNumber(database.DB)
	if err != nil {
		log.Printf("🔥 Failed to generate invoice number for payment %s: %v", payment.ID, err)
		return
	}

	htmlData, err := renderInvoiceHTML(invoiceNumber, student.FullName, course.Title, payment)
	if err != nil {
		log.Printf("🔥 Failed to render invoice HTML: %v", err)
		return
	}

	pdfBytes, err := generatePDFFromHTML(htmlData)
	if err != nil {
		log.Printf("🔥 Failed to generate invoice PDF: %v", err)
		return
	}

	uploadURL, err := uploadInvoice(pdfBytes, invoiceNumber)
	if err != nil {
		log.Printf("🔥 Failed to upload invoice to Cloudinary: %v", err)
		return
	}

	if err := database.DB.Model(&models.Payment{}).Where("id = ?", payment.ID).
		Update("receipt_url", uploadURL).Error; err != nil {
		log.Printf("🔥 Failed to save receipt URL for payment %s: %v", payment.ID, err)
	}
	if err := database.DB.Model(&models.Transaction{}).Where("id = ?", txn.ID).
		Update("invoice_url", uploadURL).Error; err != nil {
		log.Printf("🔥 Failed to save invoice URL for transaction %s: %v", txn.ID, err)
	}

	log.Printf("✅ Generated invoice %s for payment %s", invoiceNumber, payment.ID)
}

// sendSaleEmails sends the receipt to the student and the sale notice to the
// teacher. Both are best effort.
func sendSaleEmails(student models.User, course models.Course, payment models.Payment) {
	notifications.SendEmail(
		student.FullName,
		student.Email,
		"Payment received — you're enrolled!",
		fmt.Sprintf("<h1>Thank you, %s!</h1><p>Your payment of %.2f %s for <strong>%s</strong> was received. Your invoice will be available shortly.</p>",
			student.FullName, payment.Amount, payment.Currency, course.Title),
	)

	// Teacher's primary key is the user ID, so the account row is a direct
	// lookup.
	var teacherUser models.User
	err := database.DB.First(&teacherUser, "id = ?", payment.TeacherID).Error
	if err != nil {
		log.Printf("Failed to load teacher for sale notice on payment %s: %v", payment.ID, err)
		return
	}
	notifications.SendEmail(
		teacherUser.FullName,
		teacherUser.Email,
		"You made a sale!",
		fmt.Sprintf("<h1>New enrollment</h1><p><strong>%s</strong> just sold. Your share of %.2f %s has been added to your pending earnings.</p>",
			course.Title, payment.TeacherShare, payment.Currency),
	)
}

func renderInvoiceHTML(invoiceNumber, studentName, courseTitle string, payment models.Payment) (string, error) {
	tmpl, err := template.ParseFiles("templates/invoice.html")
	if err != nil {
		return "", err
	}

	data := struct {
		InvoiceNumber string
		StudentName   string
		CourseTitle   string
		Amount        string
		Currency      string
		IssuedAt      string
	}{
		InvoiceNumber: invoiceNumber,
		StudentName:   studentName,
		CourseTitle:   courseTitle,
		Amount:        fmt.Sprintf("%.2f", payment.Amount),
		Currency:      payment.Currency,
		IssuedAt:      time.Now().Format("January 2, 2006"),
	}

	var renderedHTML bytes.Buffer
	if err := tmpl.Execute(&renderedHTML, data); err != nil {
		return "", err
	}
	return renderedHTML.String(), nil
}

func generatePDFFromHTML(htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

func uploadInvoice(fileBytes []byte, invoiceNumber string) (string, error) {
	cld, err := cloudinary.NewFromURL(config.Config("CLOUDINARY_URL"))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uploadParams := uploader.UploadParams{
		PublicID:     fmt.Sprintf("invoices/%s_%s", invoiceNumber, uuid.New().String()),
		Folder:       "course_market_invoices",
		ResourceType: "raw",
	}

	uploadResult, err := cld.Upload.Upload(ctx, bytes.NewReader(fileBytes), uploadParams)
	if err != nil {
		return "", err
	}

	return uploadResult.SecureURL, nil
}
