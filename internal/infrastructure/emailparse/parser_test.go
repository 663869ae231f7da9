package emailparse

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/ledger"
)

func TestParse_PlainText(t *testing.T) {
	raw := "From: DBS Alerts <alerts@dbs.com>\n" +
		"To: me@example.com\n" +
		"Subject: Card Transaction Alert\n" +
		"Date: Tue, 03 Feb 2026 17:30:00 +0800\n" +
		"Message-ID: <a1@dbs.com>\n" +
		"Content-Type: text/plain; charset=utf-8\n" +
		"\n" +
		"Transaction of SGD 12.34 at   KOPITIAM on 03 Feb.\r\n"

	parsed, err := New("SGD").Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c := parsed.Candidate
	if !c.AmountOriginal.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("AmountOriginal = %s, want 12.34", c.AmountOriginal)
	}
	if c.CurrencyOriginal != "SGD" {
		t.Errorf("CurrencyOriginal = %q, want SGD", c.CurrencyOriginal)
	}
	if c.TxnType != ledger.TypeExpense {
		t.Errorf("TxnType = %q, want expense", c.TxnType)
	}
	if c.MerchantRaw != "dbs.com" || c.MerchantNorm != "dbs.com" {
		t.Errorf("merchant = %q/%q, want dbs.com", c.MerchantRaw, c.MerchantNorm)
	}
	if c.NeedsReview {
		t.Error("NeedsReview should be false")
	}
	if c.Confidence != ConfidenceComplete {
		t.Errorf("Confidence = %v, want %v", c.Confidence, ConfidenceComplete)
	}
	want := time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)
	if c.PostedAt == nil || !c.PostedAt.Equal(want) || c.PostedAt.Location() != time.UTC {
		t.Errorf("PostedAt = %v, want %v", c.PostedAt, want)
	}
	if parsed.Subject != "Card Transaction Alert" {
		t.Errorf("Subject = %q", parsed.Subject)
	}
	if parsed.Body != "Transaction of SGD 12.34 at KOPITIAM on 03 Feb." {
		t.Errorf("Body = %q", parsed.Body)
	}
}

func TestParse_MultipartPrefersPlain(t *testing.T) {
	raw := "From: Amazon <auto-confirm@amazon.com>\n" +
		"Subject: Your order\n" +
		"MIME-Version: 1.0\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\n" +
		"\n" +
		"--b1\n" +
		"Content-Type: text/plain; charset=utf-8\n" +
		"Content-Transfer-Encoding: quoted-printable\n" +
		"\n" +
		"USD 1,234.50 charged=\n" +
		" at AMAZON\n" +
		"--b1\n" +
		"Content-Type: text/html; charset=utf-8\n" +
		"\n" +
		"<p>USD 9.99</p>\n" +
		"--b1--\n"

	parsed, err := New("SGD").Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Body != "USD 1,234.50 charged at AMAZON" {
		t.Errorf("Body = %q", parsed.Body)
	}
	c := parsed.Candidate
	if !c.AmountOriginal.Equal(decimal.RequireFromString("1234.50")) || c.CurrencyOriginal != "USD" {
		t.Errorf("amount = %s %s, want 1234.50 USD", c.AmountOriginal, c.CurrencyOriginal)
	}
	if c.PostedAt != nil {
		t.Errorf("PostedAt = %v, want nil without a Date header", c.PostedAt)
	}
}

func TestParse_HTMLOnlyBase64(t *testing.T) {
	html := "<html><head><style>p{color:red}</style></head><body>" +
		"<p>You paid S$8.90</p><p>to GRAB &amp; CO</p></body></html>"
	encoded := base64.StdEncoding.EncodeToString([]byte(html))
	// Wrap like a mail client would.
	wrapped := encoded[:20] + "\r\n" + encoded[20:]

	raw := "From: Bank <noreply@bank.sg>\n" +
		"Subject: Payment\n" +
		"Content-Type: text/html; charset=utf-8\n" +
		"Content-Transfer-Encoding: base64\n" +
		"\n" + wrapped + "\n"

	parsed, err := New("SGD").Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Body != "You paid S$8.90\nto GRAB & CO" {
		t.Errorf("Body = %q", parsed.Body)
	}
	c := parsed.Candidate
	if !c.AmountOriginal.Equal(decimal.RequireFromString("8.90")) || c.CurrencyOriginal != "SGD" {
		t.Errorf("amount = %s %s, want 8.90 SGD", c.AmountOriginal, c.CurrencyOriginal)
	}
}

func TestParse_AttachmentIgnored(t *testing.T) {
	raw := "From: a@b.com\n" +
		"Content-Type: multipart/mixed; boundary=zz\n" +
		"\n" +
		"--zz\n" +
		"Content-Type: text/plain\n" +
		"Content-Disposition: attachment; filename=old.txt\n" +
		"\n" +
		"SGD 999.00\n" +
		"--zz\n" +
		"Content-Type: text/plain\n" +
		"\n" +
		"SGD 1.00\n" +
		"--zz--\n"

	parsed, err := New("SGD").Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parsed.Candidate.AmountOriginal.Equal(decimal.NewFromInt(1)) {
		t.Errorf("AmountOriginal = %s, want 1", parsed.Candidate.AmountOriginal)
	}
}

func TestParse_Incomplete(t *testing.T) {
	raw := "From: Bank Alerts\n" +
		"Subject: Login notice\n" +
		"\n" +
		"\n"

	parsed, err := New("USD").Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c := parsed.Candidate
	if !c.NeedsReview {
		t.Error("NeedsReview should be true without an amount")
	}
	if c.Confidence != ConfidenceIncomplete {
		t.Errorf("Confidence = %v, want %v", c.Confidence, ConfidenceIncomplete)
	}
	if !c.AmountOriginal.IsZero() {
		t.Errorf("AmountOriginal = %s, want 0", c.AmountOriginal)
	}
	if c.CurrencyOriginal != "USD" {
		t.Errorf("CurrencyOriginal = %q, want the local currency", c.CurrencyOriginal)
	}
	if c.MerchantRaw != "" {
		t.Errorf("MerchantRaw = %q, want empty", c.MerchantRaw)
	}
}

func TestParse_NotAMessage(t *testing.T) {
	_, err := New("SGD").Parse(nil)
	if !errors.Is(err, ErrNotAMessage) {
		t.Errorf("error = %v, want ErrNotAMessage", err)
	}
}

func TestAmount(t *testing.T) {
	p := New("SGD")
	tests := []struct {
		body     string
		amount   string
		currency string
		found    bool
	}{
		{"SGD 12.34 at shop", "12.34", "SGD", true},
		{"usd10.5 online", "10.5", "USD", true},
		{"EUR 2,500 transfer", "2500", "EUR", true},
		{"Paid S$ 4.20", "4.20", "SGD", true},
		{"Paid $7", "7", "SGD", true},
		{"USD 3.00 and S$1.00", "3.00", "USD", true},
		{"SGD 0.00", "", "", false},
		{"no money here", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			amount, currency, found := p.amount(tt.body)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if !found {
				return
			}
			if !amount.Equal(decimal.RequireFromString(tt.amount)) || currency != tt.currency {
				t.Errorf("amount(%q) = %s %s, want %s %s", tt.body, amount, currency, tt.amount, tt.currency)
			}
		})
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		subject string
		body    string
		want    string
	}{
		{"Card alert", "SGD 5.00 at KOPITIAM", ledger.TypeExpense},
		{"PayNow", "You sent SGD 20 to account ending 1234", ledger.TypeTransfer},
		{"Refund processed", "SGD 5.00", ledger.TypeRefund},
		{"", "Your salary of SGD 3000 has been credited", ledger.TypeIncome},
		{"Reversal", "Funds transfer reversed and credited", ledger.TypeIncome},
	}

	for _, tt := range tests {
		if got := direction(tt.subject, tt.body); got != tt.want {
			t.Errorf("direction(%q, %q) = %q, want %q", tt.subject, tt.body, got, tt.want)
		}
	}
}

func TestMerchantOf(t *testing.T) {
	tests := []struct {
		from string
		body string
		want string
	}{
		{"DBS <alerts@dbs.com>", "anything", "dbs.com"},
		{"alerts@ocbc.com", "", "ocbc.com"},
		{"Bank Alerts", "\nSpent at KOPITIAM TAMPINES\nSGD 4.50", "Spent at KOPITIAM TAMPINES"},
		{"", "12.00\n" + strings.Repeat("x", 90) + "\nGRAB", "GRAB"},
		{"", "12.00", ""},
	}

	for _, tt := range tests {
		if got := merchantOf(tt.from, tt.body); got != tt.want {
			t.Errorf("merchantOf(%q, %q) = %q, want %q", tt.from, tt.body, got, tt.want)
		}
	}
}

func TestDecodeHeader(t *testing.T) {
	tests := map[string]string{
		"Plain subject":             "Plain subject",
		"=?UTF-8?B?Q2Fmw6k=?=":      "Café",
		"=?windows-1252?Q?Caf=E9?=": "Café",
		"=?x-unknown?Q?abc?= tail":  "=?x-unknown?Q?abc?= tail",
		"  padded  ":                "padded",
	}
	for in, want := range tests {
		if got := DecodeHeader(in); got != want {
			t.Errorf("DecodeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}
