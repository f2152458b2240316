package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products. Root categories have no parent.
type Category struct {
	ID        int64
	Name      string
	Slug      string
	ParentID  *int64
	CreatedAt time.Time
}

// IsRoot reports whether the category sits at the top of the tree.
func (c Category) IsRoot() bool { return c.ParentID == nil }

// Brand is a product manufacturer.
type Brand struct {
	ID          int64
	Name        string
	Logo        string
	Description string
	CreatedAt   time.Time
}

// Banner is a landing page hero image.
type Banner struct {
	ID        int64
	Title     string
	Image     string
	CreatedAt time.Time
}

// Product is a catalog entry. Name is the model name and, like SKU, unique.
type Product struct {
	ID              int64
	CategoryID      int64
	BrandID         int64
	Name            string
	SKU             string
	OriginalPrice   decimal.Decimal
	DiscountedPrice decimal.NullDecimal
	Image           string
	CountryOfOrigin string
	Description     string
	Specs           map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	CategoryName string
	BrandName    string
}


// Spec returns a single spec value, empty when unset.
func (p Product) Spec(key string) string {
	if p.Specs == nil {
		return ""
	}
	return p.Specs[key]
}

// LinkKind distinguishes the two product-to-product relations.
type LinkKind string

const (
	// LinkRelated marks products shown as "related".
	LinkRelated LinkKind = "related"
	// LinkCompatible marks compatible modules.
	LinkCompatible LinkKind = "compatible"
)

// Valid reports whether k is a known link kind.
func (k LinkKind) Valid() bool {
	return k == LinkRelated || k == LinkCompatible
}

// ProductLink is one row of the explicit product-to-product relation.
type ProductLink struct {
	ProductID       int64
	LinkedProductID int64
	Kind            LinkKind
	CreatedAt       time.Time
}

// Links holds the ids of both link sets of a product.
type Links struct {
	Related    []int64
	Compatible []int64
}

// ProductDetail is a product with its resolved link sets.
type ProductDetail struct {
	Product    Product
	Related    []Product
	Compatible []Product
}

// HomeSection is a named block of newest products on the landing page.
type HomeSection struct {
	Title    string
	Category *Category
	Products []Product
}

// HomePage aggregates the landing page content.
type HomePage struct {
	Categories []Category
	Banner     *Banner
	Sections   []HomeSection
}

// HomeSectionNames are the category names featured on the landing page.
var HomeSectionNames = []string{"VFD", "PLC", "HMI"}

// HomeSectionSize is the number of newest products per landing section.
const HomeSectionSize = 8

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID  *int64
	BrandID     *int64
	Search      string
	Limit       int
	Offset      int
	NewestFirst bool
}

// SpecField describes one optional technical attribute.
type SpecField struct {
	Key   string
	Label string
}

// SpecGroup clusters spec fields the way the admin form presents them.
type SpecGroup struct {
	Title  string
	Fields []SpecField
}

// SpecGroups lists every supported technical attribute.
var SpecGroups = []SpecGroup{
	{Title: "Drive", Fields: []SpecField{
		{Key: "rated_output_power", Label: "Rated Output Power"},
		{Key: "rated_output_current", Label: "Rated Output Current"},
		{Key: "output_frequency_range", Label: "Output Frequency Range"},
		{Key: "output_voltage", Label: "Output Voltage"},
		{Key: "input_voltage", Label: "Input Voltage"},
		{Key: "input_frequency", Label: "Input Frequency"},
		{Key: "power_supply_capacity", Label: "Power Supply Capacity"},
		{Key: "control_method", Label: "Control Method"},
		{Key: "dynamic_brake", Label: "Dynamic Brake"},
	}},
	{Title: "Servo", Fields: []SpecField{
		{Key: "servo_amplifier", Label: "Servo Amplifier"},
		{Key: "servo_motor", Label: "Servo Motor"},
		{Key: "rated_speed", Label: "Rated Speed"},
		{Key: "maximum_speed", Label: "Maximum Speed"},
		{Key: "rated_torque", Label: "Rated Torque"},
		{Key: "maximum_torque", Label: "Maximum Torque"},
		{Key: "rated_output", Label: "Rated Output"},
		{Key: "rated_voltage", Label: "Rated Voltage"},
		{Key: "rated_current", Label: "Rated Current"},
		{Key: "maximum_current", Label: "Maximum Current"},
		{Key: "encoder_type", Label: "Encoder Type"},
		{Key: "encoder_resolution", Label: "Encoder Resolution"},
	}},
	{Title: "PLC", Fields: []SpecField{
		{Key: "plc_input", Label: "PLC Input"},
		{Key: "plc_output", Label: "PLC Output"},
		{Key: "output_type", Label: "Output Type"},
		{Key: "power_supply_input", Label: "Power Supply Input"},
		{Key: "built_in_interface", Label: "Built-in Interface"},
		{Key: "communication", Label: "Communication"},
		{Key: "compatible_software_package", Label: "Compatible Software Package"},
	}},
	{Title: "HMI", Fields: []SpecField{
		{Key: "display_device", Label: "Display Device"},
		{Key: "display_size", Label: "Display Size"},
		{Key: "screen_size", Label: "Screen Size"},
		{Key: "display_color", Label: "Display Color"},
		{Key: "resolution", Label: "Resolution"},
	}},
	{Title: "General", Fields: []SpecField{
		{Key: "supply_voltage", Label: "Supply Voltage"},
		{Key: "dimensions", Label: "Dimensions"},
		{Key: "external_dimensions", Label: "External Dimensions"},
		{Key: "weight", Label: "Weight"},
	}},
}

var specKeys = func() map[string]string {
	keys := make(map[string]string)
	for _, group := range SpecGroups {
		for _, field := range group.Fields {
			keys[field.Key] = field.Label
		}
	}
	return keys
}()

// IsSpecKey reports whether key is a supported spec attribute.
func IsSpecKey(key string) bool {
	_, ok := specKeys[key]
	return ok
}

// SpecRow is a populated spec attribute ready for display.
type SpecRow struct {
	Label string
	Value string
}

// SpecRows returns the populated spec attributes in display order.
func (p Product) SpecRows() []SpecRow {
	var rows []SpecRow
	for _, group := range SpecGroups {
		for _, field := range group.Fields {
			if value := strings.TrimSpace(p.Spec(field.Key)); value != "" {
				rows = append(rows, SpecRow{Label: field.Label, Value: value})
			}
		}
	}
	return rows
}
