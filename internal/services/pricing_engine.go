package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/tidynest/api/internal/domain"
)

var (
	// ErrQuoteInvalidInput signals bad request data such as negative counts or unknown catalog ids.
	ErrQuoteInvalidInput = errors.New("quote pricing: invalid input")
)

const quoteCurrency = "USD"

// QuotePricingEngine turns calculator selections into a priced breakdown.
// All intermediate arithmetic runs in float64 cents; figures are rounded to
// whole cents only when the breakdown is assembled, so compounding steps
// never accumulate rounding error.
type QuotePricingEngine struct {
	catalog CatalogService
	logger  func(context.Context, string, map[string]any)
	printer *message.Printer
}

// QuotePricingEngineDeps wires the catalog dependency for the engine.
type QuotePricingEngineDeps struct {
	Catalog CatalogService
	Logger  func(context.Context, string, map[string]any)
}

// NewQuotePricingEngine constructs the engine enforcing dependency validation.
func NewQuotePricingEngine(deps QuotePricingEngineDeps) (*QuotePricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("quote pricing engine: catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &QuotePricingEngine{
		catalog: deps.Catalog,
		logger:  logger,
		printer: message.NewPrinter(language.AmericanEnglish),
	}, nil
}

// Calculate prices the command. It is pure: no stored state is read or written.
func (e *QuotePricingEngine) Calculate(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	if err := e.validate(cmd); err != nil {
		return QuoteResult{}, err
	}

	multiplier := cmd.CleanlinessMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	roomLines := make([]domain.RoomLineBreakdown, 0, len(cmd.Rooms))
	var subtotal float64

	for _, selection := range cmd.Rooms {
		if selection.Count == 0 {
			continue
		}
		room, ok := e.catalog.Room(selection.RoomType)
		if !ok {
			return QuoteResult{}, fmt.Errorf("%w: unknown room type %q", ErrQuoteInvalidInput, selection.RoomType)
		}

		rate := float64(room.BasePrice) * e.catalog.TierMultiplier(selection.Tier)
		addOnNames := make([]string, 0, len(selection.AddOns))
		for _, id := range selection.AddOns {
			adjustment, ok := findAdjustment(room.AddOns, id)
			if !ok {
				return QuoteResult{}, fmt.Errorf("%w: unknown add-on %q for room %q", ErrQuoteInvalidInput, id, selection.RoomType)
			}
			rate += float64(adjustment.Delta)
			addOnNames = append(addOnNames, adjustment.Name)
		}
		reductionNames := make([]string, 0, len(selection.Reductions))
		for _, id := range selection.Reductions {
			adjustment, ok := findAdjustment(room.Reductions, id)
			if !ok {
				return QuoteResult{}, fmt.Errorf("%w: unknown reduction %q for room %q", ErrQuoteInvalidInput, id, selection.RoomType)
			}
			// Reductions may push the adjusted rate below zero; negative
			// lines offset other rooms rather than flooring at zero.
			rate -= float64(adjustment.Delta)
			reductionNames = append(reductionNames, adjustment.Name)
		}

		line := rate * float64(selection.Count)
		subtotal += line

		roomLines = append(roomLines, domain.RoomLineBreakdown{
			RoomType:   room.Type,
			Display:    e.printer.Sprintf("%s × %d — $%.2f", room.Name, selection.Count, line/100),
			Tier:       normaliseTier(selection.Tier),
			Count:      selection.Count,
			UnitRate:   roundCents(rate),
			LineTotal:  roundCents(line),
			AddOns:     addOnNames,
			Reductions: reductionNames,
		})
	}

	addOnLines := make([]domain.AddOnLineBreakdown, 0, len(cmd.AddOns))
	for _, selection := range cmd.AddOns {
		if selection.Quantity == 0 {
			continue
		}
		addOn, ok := e.catalog.AddOn(selection.AddOnID)
		if !ok {
			return QuoteResult{}, fmt.Errorf("%w: unknown add-on %q", ErrQuoteInvalidInput, selection.AddOnID)
		}
		line := float64(addOn.UnitPrice) * float64(selection.Quantity)
		subtotal += line
		addOnLines = append(addOnLines, domain.AddOnLineBreakdown{
			AddOnID:   addOn.ID,
			Display:   e.printer.Sprintf("%s × %d — $%.2f", addOn.Name, selection.Quantity, line/100),
			Quantity:  selection.Quantity,
			UnitPrice: addOn.UnitPrice,
			LineTotal: roundCents(line),
		})
	}

	discounts := make([]domain.DiscountBreakdown, 0, 1+len(cmd.CouponCodes))

	// The cleanliness multiplier applies to the running total only; the
	// pre-multiplier subtotal stays available for display.
	running := subtotal * multiplier

	frequencyPercent, frequencyDescription := e.catalog.FrequencyDiscount(normaliseFrequency(cmd.Frequency))
	var frequencyDiscount float64
	if frequencyPercent > 0 {
		frequencyDiscount = running * frequencyPercent
		running -= frequencyDiscount
		discounts = append(discounts, domain.DiscountBreakdown{
			Type:        "frequency",
			Code:        string(normaliseFrequency(cmd.Frequency)),
			Description: frequencyDescription,
			Amount:      roundCents(frequencyDiscount),
		})
	}

	// Coupons apply sequentially and compound on the already-discounted
	// total. Unknown codes are ignored without error.
	var couponDiscount float64
	for _, code := range cmd.CouponCodes {
		percent, ok := e.catalog.CouponPercent(code)
		if !ok {
			e.logger(ctx, "quote.coupon_ignored", map[string]any{"code": strings.TrimSpace(code)})
			continue
		}
		amount := running * percent
		running -= amount
		couponDiscount += amount
		discounts = append(discounts, domain.DiscountBreakdown{
			Type:        "coupon",
			Code:        strings.ToUpper(strings.TrimSpace(code)),
			Description: e.printer.Sprintf("Coupon %s (%.0f%% off)", strings.ToUpper(strings.TrimSpace(code)), percent*100),
			Amount:      roundCents(amount),
		})
	}

	tax := running * e.catalog.TaxRate()
	total := running + tax

	breakdown := domain.QuoteBreakdown{
		Currency:          quoteCurrency,
		Subtotal:          roundCents(subtotal),
		FrequencyDiscount: roundCents(frequencyDiscount),
		CouponDiscount:    roundCents(couponDiscount),
		Tax:               roundCents(tax),
		Total:             roundCents(total),
		Rooms:             roomLines,
		AddOns:            addOnLines,
		Discounts:         discounts,
		Metadata: map[string]any{
			"cleanlinessMultiplier": multiplier,
			"frequency":             string(normaliseFrequency(cmd.Frequency)),
		},
	}

	return QuoteResult{Breakdown: breakdown}, nil
}

func (e *QuotePricingEngine) validate(cmd QuoteCommand) error {
	for _, selection := range cmd.Rooms {
		if selection.Count < 0 {
			return fmt.Errorf("%w: room %q count must be non-negative", ErrQuoteInvalidInput, selection.RoomType)
		}
	}
	for _, selection := range cmd.AddOns {
		if selection.Quantity < 0 {
			return fmt.Errorf("%w: add-on %q quantity must be non-negative", ErrQuoteInvalidInput, selection.AddOnID)
		}
	}
	if cmd.CleanlinessMultiplier < 0 {
		return fmt.Errorf("%w: cleanliness multiplier must be non-negative", ErrQuoteInvalidInput)
	}
	return nil
}

func findAdjustment(adjustments []domain.CatalogAdjustment, id string) (domain.CatalogAdjustment, bool) {
	target := strings.ToLower(strings.TrimSpace(id))
	for _, adjustment := range adjustments {
		if adjustment.ID == target {
			return adjustment, true
		}
	}
	return domain.CatalogAdjustment{}, false
}

func normaliseTier(tier domain.Tier) domain.Tier {
	switch tier {
	case domain.TierBasic, domain.TierPremium:
		return tier
	default:
		return domain.TierStandard
	}
}

func normaliseFrequency(freq domain.Frequency) domain.Frequency {
	switch freq {
	case domain.FrequencyWeekly, domain.FrequencyBiWeekly, domain.FrequencyMonthly:
		return freq
	default:
		return domain.FrequencyOneTime
	}
}

func roundCents(value float64) int64 {
	return int64(math.Round(value))
}
