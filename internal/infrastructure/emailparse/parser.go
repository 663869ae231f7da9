package emailparse

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/ingest"
	"mailledger/internal/domain/ledger"
	"mailledger/internal/domain/rawmessage"
)

// Confidence assigned to a candidate.
const (
	ConfidenceComplete   = 0.7
	ConfidenceIncomplete = 0.3
)

const maxMerchantLen = 80

var ErrNotAMessage = errors.New("input is not an RFC 5322 message")

var (
	transferKeywords = []string{
		"transfer", "fund transfer", "funds transfer", "fast", "giro", "paynow",
		"to account", "from account", "beneficiary", "recipient",
	}
	refundKeywords = []string{"refund", "refunded", "reversal", "reversed", "chargeback"}
	incomeKeywords = []string{"credited", "salary", "incoming credit"}

	amountPattern = `([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)\b`
	isoAmount     = regexp.MustCompile(`(?i)\b(SGD|USD|EUR|GBP|AUD|CAD|JPY|CNY|HKD|MYR)\s*` + amountPattern)
	localAmount   = regexp.MustCompile(`(?i)\bS\$\s*` + amountPattern)
	dollarAmount  = regexp.MustCompile(`\$\s*` + amountPattern)
	merchantLine  = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

// Parser extracts a transaction candidate from a bank notification. The
// heuristics are conservative: anything it cannot establish is left for
// review rather than guessed.
type Parser struct {
	localCurrency string
}

var _ ingest.Parser = (*Parser)(nil)

// New creates a parser. localCurrency is assumed for "S$" and bare "$"
// amounts.
func New(localCurrency string) *Parser {
	if localCurrency == "" {
		localCurrency = "SGD"
	}
	return &Parser{localCurrency: strings.ToUpper(localCurrency)}
}

// Parse reads a raw message and returns its plain body text plus a
// candidate. Missing amount, currency or merchant marks the candidate for
// review.
func (p *Parser) Parse(raw []byte) (*ingest.Parsed, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNotAMessage)
	}

	var b bodies
	if err := b.walk(msg.Header, msg.Body, 0); err != nil {
		return nil, err
	}

	subject := DecodeHeader(msg.Header.Get("Subject"))
	from := DecodeHeader(msg.Header.Get("From"))
	body := rawmessage.NormalizeBody(b.text())

	var posted *time.Time
	if t, err := msg.Header.Date(); err == nil {
		t = t.UTC()
		posted = &t
	}

	amount, currency, found := p.amount(body)
	merchant := merchantOf(from, body)
	merchantNorm := strings.ToLower(strings.TrimSpace(merchant))

	needsReview := !found || merchantNorm == ""
	confidence := ConfidenceComplete
	if needsReview {
		confidence = ConfidenceIncomplete
	}
	if !found {
		currency = p.localCurrency
	}

	return &ingest.Parsed{
		Subject: subject,
		Body:    body,
		Candidate: ingest.Candidate{
			TxnType:          direction(subject, body),
			PostedAt:         posted,
			AmountOriginal:   amount,
			CurrencyOriginal: currency,
			MerchantRaw:      merchant,
			MerchantNorm:     merchantNorm,
			Source:           ledger.DefaultSource,
			Confidence:       confidence,
			NeedsReview:      needsReview,
		},
	}, nil
}

// amount finds the first ISO-prefixed amount, then S$, then bare $.
func (p *Parser) amount(body string) (decimal.Decimal, string, bool) {
	if m := isoAmount.FindStringSubmatch(body); m != nil {
		if d, ok := parseAmount(m[2]); ok {
			return d, strings.ToUpper(m[1]), true
		}
	}
	for _, re := range []*regexp.Regexp{localAmount, dollarAmount} {
		if m := re.FindStringSubmatch(body); m != nil {
			if d, ok := parseAmount(m[1]); ok {
				return d, p.localCurrency, true
			}
		}
	}
	return decimal.Zero, "", false
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// direction applies keyword groups in increasing precedence: transfer,
// refund, income. Anything else is an expense.
func direction(subject, body string) string {
	text := strings.ToLower(subject + "\n" + body)

	txnType := ledger.TypeExpense
	if containsAny(text, transferKeywords) {
		txnType = ledger.TypeTransfer
	}
	if containsAny(text, refundKeywords) {
		txnType = ledger.TypeRefund
	}
	if containsAny(text, incomeKeywords) {
		txnType = ledger.TypeIncome
	}
	return txnType
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// merchantOf uses the sender's domain when there is one, otherwise the
// first short body line that has a word in it.
func merchantOf(from, body string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 && at < len(addr.Address)-1 {
			return addr.Address[at+1:]
		}
	} else if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return strings.Trim(from[at+1:], "> ")
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) < maxMerchantLen && merchantLine.MatchString(line) {
			return line
		}
	}
	return ""
}
