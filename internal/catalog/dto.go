package catalog

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/shared"
)

// CategoryInput is the admin payload for a category.
type CategoryInput struct {
	Name     string `form:"name" validate:"required,max=100"`
	ParentID *int64 `form:"parent_id" validate:"omitempty,gt=0"`
}

// BrandInput is the admin payload for a brand.
type BrandInput struct {
	Name        string `form:"name" validate:"required,max=255"`
	Logo        string `form:"logo" validate:"max=255"`
	Description string `form:"description" validate:"max=10000"`
}

// BannerInput is the admin payload for a banner.
type BannerInput struct {
	Title string `form:"title" validate:"max=200"`
	Image string `form:"image" validate:"max=255"`
}

// ProductInput is the admin payload for a product and its link sets.
type ProductInput struct {
	CategoryID      int64               `form:"category_id" validate:"required,gt=0"`
	BrandID         int64               `form:"brand_id" validate:"required,gt=0"`
	Name            string              `form:"name" validate:"required,max=255"`
	SKU             string              `form:"sku" validate:"required,max=50"`
	OriginalPrice   decimal.Decimal     `form:"original_price" validate:"-"`
	DiscountedPrice decimal.NullDecimal `form:"discounted_price" validate:"-"`
	Image           string              `form:"image" validate:"max=255"`
	CountryOfOrigin string              `form:"country_of_origin" validate:"required,max=100"`
	Description     string              `form:"description" validate:"max=20000"`
	Specs           map[string]string   `form:"specs" validate:"-"`
	Related         []int64             `form:"related" validate:"dive,gt=0"`
	Compatible      []int64             `form:"compatible" validate:"dive,gt=0"`
}

// CloneInput names the copy produced by Clone.
type CloneInput struct {
	Name string `form:"model_name"`
	SKU  string `form:"sku"`
}

func normalizeCategory(in CategoryInput) CategoryInput {
	in.Name = strings.TrimSpace(in.Name)
	return in
}

func normalizeBrand(in BrandInput) BrandInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Logo = strings.TrimSpace(in.Logo)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func normalizeProduct(in ProductInput) ProductInput {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Image = strings.TrimSpace(in.Image)
	in.CountryOfOrigin = strings.TrimSpace(in.CountryOfOrigin)
	in.Description = strings.TrimSpace(in.Description)
	specs := make(map[string]string, len(in.Specs))
	for key, value := range in.Specs {
		if value = strings.TrimSpace(value); value != "" {
			specs[key] = value
		}
	}
	in.Specs = specs
	in.Related = uniqueIDs(in.Related)
	in.Compatible = uniqueIDs(in.Compatible)
	return in
}

func validateProduct(v *validator.Validate, in ProductInput, selfID int64) error {
	verrs := shared.ValidateStruct(v, in)
	if in.OriginalPrice.IsNegative() {
		verrs.Add("original_price", "Ensure this value is greater than or equal to 0.")
	}
	if in.DiscountedPrice.Valid && in.DiscountedPrice.Decimal.IsNegative() {
		verrs.Add("discounted_price", "Ensure this value is greater than or equal to 0.")
	}
	for key, value := range in.Specs {
		if !IsSpecKey(key) {
			verrs.Add("specs."+key, "Unknown specification field.")
			continue
		}
		if len(value) > 255 {
			verrs.Add("specs."+key, "Ensure this value has at most 255 characters.")
		}
	}
	if selfID > 0 {
		for _, id := range append(append([]int64{}, in.Related...), in.Compatible...) {
			if id == selfID {
				verrs.Add("related", "A product cannot be linked to itself.")
				break
			}
		}
	}
	return verrs.Err()
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
