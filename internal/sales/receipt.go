package sales

import (
	"fmt"
	"strings"

	"github.com/kioskolabs/kiosko-sync/internal/models"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const receiptWidth = 32

// Receipt renders a sale as printable receipt text, one cart line per
// row, sized for a 32-column thermal printer.
func Receipt(s models.SaleRecord) string {
	var b strings.Builder

	center := func(text string) {
		if pad := (receiptWidth - len(text)) / 2; pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}

	center("KIOSKO POS")
	center(s.TerminalID)
	b.WriteString(strings.Repeat("-", receiptWidth))
	b.WriteByte('\n')

	for _, item := range s.Items {
		name := item.Name
		if name == "" {
			name = item.SKU
		}
		left := fmt.Sprintf("%dx %s", item.Qty, name)
		right := fmt.Sprintf("%.2f", float64(item.Qty)*item.UnitPrice)
		if gap := receiptWidth - len(left) - len(right); gap > 0 {
			b.WriteString(left + strings.Repeat(" ", gap) + right)
		} else {
			b.WriteString(left + " " + right)
		}
		b.WriteByte('\n')
	}

	b.WriteString(strings.Repeat("-", receiptWidth))
	b.WriteByte('\n')
	totalLine := fmt.Sprintf("%.2f", s.Total)
	b.WriteString("TOTAL" + strings.Repeat(" ", receiptWidth-5-len(totalLine)) + totalLine)
	b.WriteByte('\n')
	b.WriteString(s.CreatedAt.Format("2006-01-02 15:04:05"))
	b.WriteByte('\n')
	b.WriteString(s.ID)
	b.WriteByte('\n')

	return b.String()
}

// EncodeReceipt converts receipt text to Windows-1252 bytes, the charset
// most thermal printers expect. Characters outside the codepage are
// replaced rather than failing the print job.
func EncodeReceipt(s models.SaleRecord) ([]byte, error) {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	out, err := enc.Bytes([]byte(Receipt(s)))
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}
	return out, nil
}
