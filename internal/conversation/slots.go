package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SlotKind is the declared type of a slot.
type SlotKind string

const (
	KindString SlotKind = "string"
	KindNumber SlotKind = "number"
	KindDate   SlotKind = "date"
	KindBool   SlotKind = "bool"
)

// SlotValue holds exactly one of a string, decimal number, date or bool.
type SlotValue struct {
	kind SlotKind
	str  string
	num  decimal.Decimal
	date time.Time
	b    bool
}

func StringValue(s string) SlotValue          { return SlotValue{kind: KindString, str: s} }
func NumberValue(d decimal.Decimal) SlotValue { return SlotValue{kind: KindNumber, num: d} }
func DateValue(t time.Time) SlotValue         { return SlotValue{kind: KindDate, date: t} }
func BoolValue(b bool) SlotValue              { return SlotValue{kind: KindBool, b: b} }

func (v SlotValue) Kind() SlotKind { return v.kind }

func (v SlotValue) AsString() (string, bool)           { return v.str, v.kind == KindString }
func (v SlotValue) AsNumber() (decimal.Decimal, bool) { return v.num, v.kind == KindNumber }
func (v SlotValue) AsDate() (time.Time, bool)          { return v.date, v.kind == KindDate }
func (v SlotValue) AsBool() (bool, bool)               { return v.b, v.kind == KindBool }

// String renders the value for logs and prompts.
func (v SlotValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindDate:
		return v.date.Format("2006-01-02")
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return ""
	}
}

type slotJSON struct {
	Kind  SlotKind        `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v SlotValue) MarshalJSON() ([]byte, error) {
	var (
		raw []byte
		err error
	)
	switch v.kind {
	case KindString:
		raw, err = json.Marshal(v.str)
	case KindNumber:
		raw, err = json.Marshal(v.num.String())
	case KindDate:
		raw, err = json.Marshal(v.date.Format(time.RFC3339))
	case KindBool:
		raw, err = json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("conversation: cannot marshal slot of kind %q", v.kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(slotJSON{Kind: v.kind, Value: raw})
}

func (v *SlotValue) UnmarshalJSON(data []byte) error {
	var wire slotJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("conversation: decode slot: %w", err)
	}
	switch wire.Kind {
	case KindString:
		var s string
		if err := json.Unmarshal(wire.Value, &s); err != nil {
			return fmt.Errorf("conversation: decode string slot: %w", err)
		}
		*v = StringValue(s)
	case KindNumber:
		var s string
		if err := json.Unmarshal(wire.Value, &s); err != nil {
			return fmt.Errorf("conversation: decode number slot: %w", err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("conversation: decode number slot: %w", err)
		}
		*v = NumberValue(d)
	case KindDate:
		var s string
		if err := json.Unmarshal(wire.Value, &s); err != nil {
			return fmt.Errorf("conversation: decode date slot: %w", err)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("conversation: decode date slot: %w", err)
		}
		*v = DateValue(t)
	case KindBool:
		var b bool
		if err := json.Unmarshal(wire.Value, &b); err != nil {
			return fmt.Errorf("conversation: decode bool slot: %w", err)
		}
		*v = BoolValue(b)
	default:
		return fmt.Errorf("conversation: unknown slot kind %q", wire.Kind)
	}
	return nil
}

// Slots holds the values gathered for the pending intent.
type Slots map[string]SlotValue

func (s Slots) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Text returns a string slot or "".
func (s Slots) Text(name string) string {
	v, _ := s[name].AsString()
	return v
}

func (s Slots) Number(name string) (decimal.Decimal, bool) {
	return s[name].AsNumber()
}

func (s Slots) Date(name string) (time.Time, bool) {
	return s[name].AsDate()
}

func (s Slots) Bool(name string) (bool, bool) {
	return s[name].AsBool()
}

// SlotSpec declares one slot an intent handler needs.
type SlotSpec struct {
	Name     string
	Kind     SlotKind
	Question string
	Hint     string
	Required bool
	// Check rejects coerced values outside the slot's domain.
	Check func(SlotValue) error
}
