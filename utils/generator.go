package utils

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/edusoko/course_market/models"
	"gorm.io/gorm"
)

const invoiceCodeLength = 8
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateInvoiceNumber returns a fresh invoice number, re-rolling the random
// suffix on the off chance an issued invoice already carries it.
func GenerateInvoiceNumber(tx *gorm.DB) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		b := make([]byte, invoiceCodeLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		number := fmt.Sprintf("INV-%s-%s", time.Now().Format("20060102"), string(b))

		var count int64
		err := tx.Model(&models.Transaction{}).
			Where("invoice_url LIKE ?", "%"+number+"%").
			Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return number, nil
		}
	}
}
