package batch

import (
	"errors"
	"strings"
	"testing"

	"mailledger/internal/shared/apperr"
)

func TestDecodeProposals(t *testing.T) {
	item := `{"txnType":"expense","amountOriginal":12.34,"currencyOriginal":"sgd","category":"Snacks"}`

	tests := []struct {
		name      string
		body      string
		wantCount int
		wantErr   bool
	}{
		{"array", "[" + item + "," + item + "]", 2, false},
		{"wrapped", `{"proposals":[` + item + `]}`, 1, false},
		{"string amount", `[{"txnType":"income","amountOriginal":"100.00","currencyOriginal":"USD","postedAt":"2026-01-02"}]`, 1, false},
		{"empty body", "   ", 0, true},
		{"empty array", "[]", 0, true},
		{"wrapper without list", `{"items":[]}`, 0, true},
		{"scalar", `"hello"`, 0, true},
		{"malformed json", `[{"txnType":`, 0, true},
		{"missing amount", `[{"txnType":"expense","currencyOriginal":"SGD"}]`, 0, true},
		{"bad type", `[{"txnType":"spend","amountOriginal":1,"currencyOriginal":"SGD"}]`, 0, true},
		{"bad date", `[{"txnType":"expense","amountOriginal":1,"currencyOriginal":"SGD","postedAt":"yesterday"}]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeProposals(strings.NewReader(tt.body))
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidInput) {
					t.Errorf("DecodeProposals() error = %v, want InvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeProposals() error = %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("count = %d, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestDecodeProposals_KeepsRawPayload(t *testing.T) {
	item := `{"txnType":"expense","amountOriginal":5,"currencyOriginal":"sgd","custom":"kept"}`

	got, err := DecodeProposals(strings.NewReader("[" + item + "]"))
	if err != nil {
		t.Fatalf("DecodeProposals() error = %v", err)
	}
	if string(got[0].Raw) != item {
		t.Errorf("Raw = %s, want %s", got[0].Raw, item)
	}
	if got[0].CurrencyOriginal != "SGD" {
		t.Errorf("CurrencyOriginal = %q, want SGD", got[0].CurrencyOriginal)
	}
}
