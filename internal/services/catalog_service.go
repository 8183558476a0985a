package services

import (
	"strings"

	domain "github.com/tidynest/api/internal/domain"
)

const defaultTaxRate = 0.05

// staticCatalog serves the fixed room/add-on catalog and rate tables. Rates
// are configuration constants, not tuned pricing data.
type staticCatalog struct {
	rooms       []domain.CatalogRoom
	roomIndex   map[domain.RoomType]domain.CatalogRoom
	addOns      []domain.CatalogAddOn
	addOnIndex  map[string]domain.CatalogAddOn
	coupons     map[string]float64
	frequencies map[domain.Frequency]frequencyRule
	taxRate     float64
}

type frequencyRule struct {
	percent     float64
	description string
}

// NewStaticCatalog constructs the catalog with the published rate card.
func NewStaticCatalog() CatalogService {
	rooms := []domain.CatalogRoom{
		{
			Type:      "kitchen",
			Name:      "Kitchen",
			BasePrice: 7000,
			AddOns: []domain.CatalogAdjustment{
				{ID: "inside-oven", Name: "Inside oven", Delta: 1500},
				{ID: "inside-fridge", Name: "Inside fridge", Delta: 1500},
				{ID: "cabinet-interiors", Name: "Cabinet interiors", Delta: 1000},
			},
			Reductions: []domain.CatalogAdjustment{
				{ID: "skip-appliances", Name: "Skip appliance exteriors", Delta: 800},
			},
		},
		{
			Type:      "bathroom",
			Name:      "Bathroom",
			BasePrice: 6000,
			AddOns: []domain.CatalogAdjustment{
				{ID: "grout-scrub", Name: "Grout scrub", Delta: 1200},
				{ID: "shower-descale", Name: "Shower descale", Delta: 900},
			},
			Reductions: []domain.CatalogAdjustment{
				{ID: "skip-tub", Name: "Skip tub", Delta: 1000},
			},
		},
		{
			Type:      "bedroom",
			Name:      "Bedroom",
			BasePrice: 5000,
			AddOns: []domain.CatalogAdjustment{
				{ID: "closet-organize", Name: "Closet organising", Delta: 1000},
				{ID: "under-bed", Name: "Under-bed vacuum", Delta: 500},
			},
			Reductions: []domain.CatalogAdjustment{
				{ID: "surfaces-only", Name: "Surfaces only", Delta: 1500},
			},
		},
		{
			Type:      "living-room",
			Name:      "Living Room",
			BasePrice: 5500,
			AddOns: []domain.CatalogAdjustment{
				{ID: "upholstery-vacuum", Name: "Upholstery vacuum", Delta: 800},
				{ID: "window-interior", Name: "Interior windows", Delta: 800},
			},
			Reductions: []domain.CatalogAdjustment{
				{ID: "floors-only", Name: "Floors only", Delta: 2000},
			},
		},
		{
			Type:      "dining-room",
			Name:      "Dining Room",
			BasePrice: 4500,
			Reductions: []domain.CatalogAdjustment{
				{ID: "table-tops-only", Name: "Table tops only", Delta: 1500},
			},
		},
		{
			Type:      "office",
			Name:      "Home Office",
			BasePrice: 4000,
			AddOns: []domain.CatalogAdjustment{
				{ID: "electronics-dust", Name: "Electronics dusting", Delta: 600},
			},
		},
		{
			Type:      "basement",
			Name:      "Basement",
			BasePrice: 6500,
			AddOns: []domain.CatalogAdjustment{
				{ID: "cobweb-removal", Name: "Cobweb removal", Delta: 700},
			},
		},
	}

	addOns := []domain.CatalogAddOn{
		{ID: "carpet-cleaning", Name: "Deep Carpet Cleaning", UnitPrice: 4000},
		{ID: "window-cleaning", Name: "Exterior Window Cleaning", UnitPrice: 3500},
		{ID: "garage-sweep", Name: "Garage Sweep", UnitPrice: 5000},
		{ID: "laundry-fold", Name: "Laundry & Fold", UnitPrice: 2500},
		{ID: "balcony-wash", Name: "Balcony Wash", UnitPrice: 3000},
	}

	catalog := &staticCatalog{
		rooms:      rooms,
		roomIndex:  make(map[domain.RoomType]domain.CatalogRoom, len(rooms)),
		addOns:     addOns,
		addOnIndex: make(map[string]domain.CatalogAddOn, len(addOns)),
		coupons: map[string]float64{
			"SAVE10":    0.10,
			"WELCOME15": 0.15,
			"SPRING20":  0.20,
		},
		frequencies: map[domain.Frequency]frequencyRule{
			domain.FrequencyOneTime:  {percent: 0, description: "One-time visit"},
			domain.FrequencyWeekly:   {percent: 0.20, description: "Weekly service (20% off)"},
			domain.FrequencyBiWeekly: {percent: 0.15, description: "Bi-weekly service (15% off)"},
			domain.FrequencyMonthly:  {percent: 0.10, description: "Monthly service (10% off)"},
		},
		taxRate: defaultTaxRate,
	}

	for _, room := range rooms {
		catalog.roomIndex[room.Type] = room
	}
	for _, addOn := range addOns {
		catalog.addOnIndex[addOn.ID] = addOn
	}

	return catalog
}

func (c *staticCatalog) Rooms() []domain.CatalogRoom {
	out := make([]domain.CatalogRoom, len(c.rooms))
	copy(out, c.rooms)
	return out
}

func (c *staticCatalog) AddOns() []domain.CatalogAddOn {
	out := make([]domain.CatalogAddOn, len(c.addOns))
	copy(out, c.addOns)
	return out
}

func (c *staticCatalog) Room(roomType domain.RoomType) (domain.CatalogRoom, bool) {
	room, ok := c.roomIndex[domain.RoomType(strings.ToLower(strings.TrimSpace(string(roomType))))]
	return room, ok
}

func (c *staticCatalog) AddOn(id string) (domain.CatalogAddOn, bool) {
	addOn, ok := c.addOnIndex[strings.ToLower(strings.TrimSpace(id))]
	return addOn, ok
}

func (c *staticCatalog) TierMultiplier(tier domain.Tier) float64 {
	switch tier {
	case domain.TierBasic:
		return 0.8
	case domain.TierPremium:
		return 1.2
	default:
		return 1.0
	}
}

func (c *staticCatalog) FrequencyDiscount(freq domain.Frequency) (float64, string) {
	rule, ok := c.frequencies[freq]
	if !ok {
		return 0, ""
	}
	return rule.percent, rule.description
}

func (c *staticCatalog) CouponPercent(code string) (float64, bool) {
	percent, ok := c.coupons[strings.ToUpper(strings.TrimSpace(code))]
	return percent, ok
}

func (c *staticCatalog) TaxRate() float64 {
	return c.taxRate
}
