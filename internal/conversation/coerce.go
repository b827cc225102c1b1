package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	errEmptyAnswer = errors.New("conversation: empty answer")
	numberPattern  = regexp.MustCompile(`-?\d[\d.,]*`)
	datePatterns   = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2006-01-02", "02/01/06"}
	shortDates     = []string{"02/01", "2/1"}
)

// coerceText converts a user answer to kind. now and loc anchor relative
// dates such as "hoje" and "ontem".
func coerceText(kind SlotKind, text string, now time.Time, loc *time.Location) (SlotValue, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SlotValue{}, errEmptyAnswer
	}
	switch kind {
	case KindString:
		return StringValue(text), nil
	case KindNumber:
		d, err := parseAmount(text)
		if err != nil {
			return SlotValue{}, err
		}
		return NumberValue(d), nil
	case KindDate:
		t, err := parseDate(text, now, loc)
		if err != nil {
			return SlotValue{}, err
		}
		return DateValue(t), nil
	case KindBool:
		b, err := parseBool(text)
		if err != nil {
			return SlotValue{}, err
		}
		return BoolValue(b), nil
	default:
		return SlotValue{}, fmt.Errorf("conversation: unsupported slot kind %q", kind)
	}
}

// coerceRaw converts a classifier-extracted value (decoded JSON) to kind.
func coerceRaw(kind SlotKind, raw any, now time.Time, loc *time.Location) (SlotValue, error) {
	switch v := raw.(type) {
	case nil:
		return SlotValue{}, errEmptyAnswer
	case string:
		return coerceText(kind, v, now, loc)
	case float64:
		if kind != KindNumber {
			return coerceText(kind, decimal.NewFromFloat(v).String(), now, loc)
		}
		return NumberValue(decimal.NewFromFloat(v)), nil
	case json.Number:
		if kind != KindNumber {
			return coerceText(kind, v.String(), now, loc)
		}
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return SlotValue{}, fmt.Errorf("conversation: invalid number %q: %w", v, err)
		}
		return NumberValue(d), nil
	case bool:
		if kind != KindBool {
			return SlotValue{}, fmt.Errorf("conversation: unexpected bool for %s slot", kind)
		}
		return BoolValue(v), nil
	default:
		return SlotValue{}, fmt.Errorf("conversation: unsupported slot value %T", raw)
	}
}

// parseAmount reads numbers written as "50", "R$ 1.234,56", "12,5" or "1,234.56".
func parseAmount(text string) (decimal.Decimal, error) {
	match := numberPattern.FindString(text)
	if match == "" {
		return decimal.Decimal{}, fmt.Errorf("conversation: no number in %q", text)
	}
	match = strings.TrimRight(match, ".,")
	lastDot := strings.LastIndex(match, ".")
	lastComma := strings.LastIndex(match, ",")

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			normalized = strings.ReplaceAll(match, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(match, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(match, ",") > 1 {
			normalized = strings.ReplaceAll(match, ",", "")
		} else {
			normalized = strings.Replace(match, ",", ".", 1)
		}
	case lastDot >= 0:
		// pt-BR thousands: "1.234" or "1.234.567"
		if dotGrouped(match) {
			normalized = strings.ReplaceAll(match, ".", "")
		} else {
			normalized = match
		}
	default:
		normalized = match
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("conversation: invalid number %q: %w", text, err)
	}
	return d, nil
}

// dotGrouped reports whether s uses dots as thousands separators: a non-zero
// leading group of 1-3 digits followed by groups of exactly 3.
func dotGrouped(s string) bool {
	groups := strings.Split(s, ".")
	if len(groups) < 2 || len(groups[0]) < 1 || len(groups[0]) > 3 || strings.TrimLeft(groups[0], "0") == "" {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func parseDate(text string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch normalizePhrase(text) {
	case "hoje", "today", "agora":
		return today, nil
	case "ontem", "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "anteontem":
		return today.AddDate(0, 0, -2), nil
	case "amanha", "amanhã", "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	text = strings.TrimSpace(text)
	for _, layout := range datePatterns {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range shortDates {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("conversation: invalid date %q", text)
}

var (
	paidPhrases   = map[string]bool{"pago": true, "paga": true, "paid": true, "ja paguei": true, "já paguei": true, "quitado": true}
	unpaidPhrases = map[string]bool{"pendente": true, "nao pago": true, "não pago": true, "em aberto": true, "aberto": true, "unpaid": true, "a pagar": true}
)

func parseBool(text string) (bool, error) {
	phrase := normalizePhrase(text)
	switch {
	case paidPhrases[phrase]:
		return true, nil
	case unpaidPhrases[phrase]:
		return false, nil
	}
	switch parseConfirmation(text) {
	case confirmYes:
		return true, nil
	case confirmNo:
		return false, nil
	}
	return false, fmt.Errorf("conversation: invalid yes/no answer %q", text)
}
