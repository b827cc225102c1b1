package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/finchat/pkg/logging"
)

// DefaultCategoryColor is used for categories created on the fly.
const DefaultCategoryColor = "#9E9E9E"

// ErrNotAwaitingConfirmation is returned by HandleConfirmation outside AwaitingConfirmation.
var ErrNotAwaitingConfirmation = errors.New("conversation: state is not awaiting confirmation")

type handlerConfig struct {
	now           func() time.Time
	location      *time.Location
	logger        *logging.Logger
	categoryColor string
}

// HandlerOption configures the intent handlers.
type HandlerOption func(*handlerConfig)

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(cfg *handlerConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithHandlerLocation sets the zone used for "today" and invoice months.
func WithHandlerLocation(loc *time.Location) HandlerOption {
	return func(cfg *handlerConfig) {
		if loc != nil {
			cfg.location = loc
		}
	}
}

func WithHandlerLogger(logger *logging.Logger) HandlerOption {
	return func(cfg *handlerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithCategoryColor overrides DefaultCategoryColor.
func WithCategoryColor(color string) HandlerOption {
	return func(cfg *handlerConfig) {
		if color != "" {
			cfg.categoryColor = color
		}
	}
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	cfg := handlerConfig{
		now:           time.Now,
		location:      time.UTC,
		logger:        logging.Default(),
		categoryColor: DefaultCategoryColor,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c handlerConfig) today() time.Time {
	local := c.now().In(c.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)
}

func formatMoney(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func askFor(specs []SlotSpec, name string) string {
	for _, spec := range specs {
		if spec.Name == name {
			return spec.Question
		}
	}
	return fmt.Sprintf("Qual o valor de %s?", name)
}

func positiveNumber(v SlotValue) error {
	d, ok := v.AsNumber()
	if !ok || !d.IsPositive() {
		return errors.New("deve ser maior que zero")
	}
	return nil
}

func nonEmptyText(v SlotValue) error {
	s, ok := v.AsString()
	if !ok || s == "" {
		return errors.New("não pode ficar vazio")
	}
	return nil
}
