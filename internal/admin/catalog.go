package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/shared"
)

const productsPerPage = 50

// ============================================================================
// CATEGORIES
// ============================================================================

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/categories.html", "Categories", map[string]any{
		"Categories": categories,
		"Names":      categoryNames(categories),
	})
}

func (h *Handler) newCategory(w http.ResponseWriter, r *http.Request) {
	h.categoryForm(w, r, http.StatusOK, 0, catalog.CategoryInput{}, nil)
}

func (h *Handler) editCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	category, err := h.catalog.Category(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.categoryForm(w, r, http.StatusOK, id, catalog.CategoryInput{Name: category.Name, ParentID: category.ParentID}, nil)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	in, verrs := parseCategory(r)
	if len(verrs) == 0 {
		category, err := h.catalog.CreateCategory(r.Context(), in)
		if err == nil {
			h.done(w, r, "/admin/categories/", "Category \""+category.Name+"\" was added.")
			return
		}
		var ok bool
		if verrs, ok = formErrors(err); !ok {
			h.fail(w, r, err)
			return
		}
	}
	h.categoryForm(w, r, http.StatusBadRequest, 0, in, verrs)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, verrs := parseCategory(r)
	if len(verrs) == 0 {
		err := h.catalog.UpdateCategory(r.Context(), id, in)
		if err == nil {
			h.done(w, r, "/admin/categories/", "Category \""+in.Name+"\" was changed.")
			return
		}
		var ok bool
		if verrs, ok = formErrors(err); !ok {
			h.fail(w, r, err)
			return
		}
	}
	h.categoryForm(w, r, http.StatusBadRequest, id, in, verrs)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), id); err != nil {
		h.rejected(w, r, "/admin/categories/", err)
		return
	}
	h.done(w, r, "/admin/categories/", "Category deleted with its subcategories and products.")
}

func (h *Handler) categoryForm(w http.ResponseWriter, r *http.Request, status int, id int64, in catalog.CategoryInput, verrs shared.ValidationErrors) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	parents := categories[:0:0]
	for _, c := range categories {
		if c.ID != id {
			parents = append(parents, c)
		}
	}
	h.render(w, r, status, "admin/category_form.html", "Category", map[string]any{
		"ID":      id,
		"Form":    in,
		"Parents": parents,
		"Errors":  verrs,
	})
}

func parseCategory(r *http.Request) (catalog.CategoryInput, shared.ValidationErrors) {
	verrs := shared.ValidationErrors{}
	if err := r.ParseForm(); err != nil {
		verrs.Add("__all__", "The form could not be read.")
	}
	in := catalog.CategoryInput{Name: r.PostFormValue("name")}
	in.ParentID = optionalID(verrs, "parent_id", r.PostFormValue("parent_id"))
	return in, verrs
}

func categoryNames(categories []catalog.Category) map[int64]string {
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

// ============================================================================
// BRANDS
// ============================================================================

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.catalog.Brands(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/brands.html", "Brands", map[string]any{"Brands": brands})
}

func (h *Handler) newBrand(w http.ResponseWriter, r *http.Request) {
	h.brandForm(w, r, http.StatusOK, 0, catalog.BrandInput{}, nil)
}

func (h *Handler) editBrand(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	brand, err := h.catalog.Brand(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.brandForm(w, r, http.StatusOK, id, catalog.BrandInput{Name: brand.Name, Logo: brand.Logo, Description: brand.Description}, nil)
}

func (h *Handler) createBrand(w http.ResponseWriter, r *http.Request) {
	in := parseBrand(r)
	brand, err := h.catalog.CreateBrand(r.Context(), in)
	if err == nil {
		h.done(w, r, "/admin/brands/", "Brand \""+brand.Name+"\" was added.")
		return
	}
	verrs, ok := formErrors(err)
	if !ok {
		h.fail(w, r, err)
		return
	}
	h.brandForm(w, r, http.StatusBadRequest, 0, in, verrs)
}

func (h *Handler) updateBrand(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := parseBrand(r)
	if err := h.catalog.UpdateBrand(r.Context(), id, in); err != nil {
		verrs, ok := formErrors(err)
		if !ok {
			h.fail(w, r, err)
			return
		}
		h.brandForm(w, r, http.StatusBadRequest, id, in, verrs)
		return
	}
	h.done(w, r, "/admin/brands/", "Brand \""+in.Name+"\" was changed.")
}

func (h *Handler) deleteBrand(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteBrand(r.Context(), id); err != nil {
		h.rejected(w, r, "/admin/brands/", err)
		return
	}
	h.done(w, r, "/admin/brands/", "Brand deleted with its products.")
}

func (h *Handler) brandForm(w http.ResponseWriter, r *http.Request, status int, id int64, in catalog.BrandInput, verrs shared.ValidationErrors) {
	h.render(w, r, status, "admin/brand_form.html", "Brand", map[string]any{
		"ID":     id,
		"Form":   in,
		"Errors": verrs,
	})
}

func parseBrand(r *http.Request) catalog.BrandInput {
	return catalog.BrandInput{
		Name:        r.PostFormValue("name"),
		Logo:        r.PostFormValue("logo"),
		Description: r.PostFormValue("description"),
	}
}

// ============================================================================
// BANNERS
// ============================================================================

func (h *Handler) listBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := h.catalog.Banners(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/banners.html", "Banners", map[string]any{"Banners": banners})
}

func (h *Handler) newBanner(w http.ResponseWriter, r *http.Request) {
	h.bannerForm(w, r, http.StatusOK, 0, catalog.BannerInput{}, nil)
}

func (h *Handler) editBanner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	banner, err := h.catalog.Banner(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.bannerForm(w, r, http.StatusOK, id, catalog.BannerInput{Title: banner.Title, Image: banner.Image}, nil)
}

func (h *Handler) createBanner(w http.ResponseWriter, r *http.Request) {
	in := catalog.BannerInput{Title: r.PostFormValue("title"), Image: r.PostFormValue("image")}
	if _, err := h.catalog.CreateBanner(r.Context(), in); err != nil {
		verrs, ok := formErrors(err)
		if !ok {
			h.fail(w, r, err)
			return
		}
		h.bannerForm(w, r, http.StatusBadRequest, 0, in, verrs)
		return
	}
	h.done(w, r, "/admin/banners/", "Banner was added.")
}

func (h *Handler) updateBanner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := catalog.BannerInput{Title: r.PostFormValue("title"), Image: r.PostFormValue("image")}
	if err := h.catalog.UpdateBanner(r.Context(), id, in); err != nil {
		verrs, ok := formErrors(err)
		if !ok {
			h.fail(w, r, err)
			return
		}
		h.bannerForm(w, r, http.StatusBadRequest, id, in, verrs)
		return
	}
	h.done(w, r, "/admin/banners/", "Banner was changed.")
}

func (h *Handler) deleteBanner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteBanner(r.Context(), id); err != nil {
		h.rejected(w, r, "/admin/banners/", err)
		return
	}
	h.done(w, r, "/admin/banners/", "Banner deleted.")
}

func (h *Handler) bannerForm(w http.ResponseWriter, r *http.Request, status int, id int64, in catalog.BannerInput, verrs shared.ValidationErrors) {
	h.render(w, r, status, "admin/banner_form.html", "Banner", map[string]any{
		"ID":     id,
		"Form":   in,
		"Errors": verrs,
	})
}

// ============================================================================
// PRODUCTS
// ============================================================================

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageNo, _ := strconv.Atoi(query.Get("page"))
	window := shared.NewPagination(pageNo, productsPerPage, 0)
	filter := catalog.ProductFilter{
		Search: strings.TrimSpace(query.Get("q")),
		Limit:  window.PerPage,
		Offset: window.Offset(),
	}
	if id, err := strconv.ParseInt(query.Get("category"), 10, 64); err == nil && id > 0 {
		filter.CategoryID = &id
	}
	products, total, err := h.catalog.Products(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/products.html", "Products", map[string]any{
		"Products":   products,
		"Categories": categories,
		"Search":     filter.Search,
		"CategoryID": filter.CategoryID,
		"Pagination": shared.NewPagination(window.Page, window.PerPage, total),
	})
}

// productForm keeps the raw price strings so a rejected form shows what was
// typed.
type productForm struct {
	Input           catalog.ProductInput
	OriginalPrice   string
	DiscountedPrice string
}

func (h *Handler) newProduct(w http.ResponseWriter, r *http.Request) {
	h.productForm(w, r, http.StatusOK, 0, productForm{Input: catalog.ProductInput{Specs: map[string]string{}}}, nil)
}

func (h *Handler) editProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, links, err := h.catalog.ProductWithLinks(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form := productForm{
		Input: catalog.ProductInput{
			CategoryID:      product.CategoryID,
			BrandID:         product.BrandID,
			Name:            product.Name,
			SKU:             product.SKU,
			Image:           product.Image,
			CountryOfOrigin: product.CountryOfOrigin,
			Description:     product.Description,
			Specs:           product.Specs,
			Related:         links.Related,
			Compatible:      links.Compatible,
		},
		OriginalPrice: product.OriginalPrice.StringFixed(2),
	}
	if product.DiscountedPrice.Valid {
		form.DiscountedPrice = product.DiscountedPrice.Decimal.StringFixed(2)
	}
	if form.Input.Specs == nil {
		form.Input.Specs = map[string]string{}
	}
	h.productForm(w, r, http.StatusOK, id, form, nil)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	form, verrs := parseProduct(r)
	if len(verrs) == 0 {
		product, err := h.catalog.CreateProduct(r.Context(), form.Input)
		if err == nil {
			h.done(w, r, "/admin/products/", "Product \""+product.Name+"\" was added.")
			return
		}
		var ok bool
		if verrs, ok = formErrors(err); !ok {
			h.fail(w, r, err)
			return
		}
	}
	h.productForm(w, r, http.StatusBadRequest, 0, form, verrs)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form, verrs := parseProduct(r)
	if len(verrs) == 0 {
		err := h.catalog.UpdateProduct(r.Context(), id, form.Input)
		if err == nil {
			h.done(w, r, "/admin/products/", "Product \""+form.Input.Name+"\" was changed.")
			return
		}
		var ok bool
		if verrs, ok = formErrors(err); !ok {
			h.fail(w, r, err)
			return
		}
	}
	h.productForm(w, r, http.StatusBadRequest, id, form, verrs)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), actorID(r), id); err != nil {
		h.rejected(w, r, "/admin/products/", err)
		return
	}
	h.done(w, r, "/admin/products/", "Product deleted.")
}

func (h *Handler) productForm(w http.ResponseWriter, r *http.Request, status int, id int64, form productForm, verrs shared.ValidationErrors) {
	ctx := r.Context()
	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	brands, err := h.catalog.Brands(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	choices, _, err := h.catalog.Products(ctx, catalog.ProductFilter{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, status, "admin/product_form.html", "Product", map[string]any{
		"ID":         id,
		"Form":       form,
		"Categories": categories,
		"Brands":     brands,
		"Choices":    choices,
		"SpecGroups": catalog.SpecGroups,
		"Errors":     verrs,
	})
}

func parseProduct(r *http.Request) (productForm, shared.ValidationErrors) {
	verrs := shared.ValidationErrors{}
	if err := r.ParseForm(); err != nil {
		verrs.Add("__all__", "The form could not be read.")
	}
	form := productForm{
		OriginalPrice:   strings.TrimSpace(r.PostFormValue("original_price")),
		DiscountedPrice: strings.TrimSpace(r.PostFormValue("discounted_price")),
	}
	in := catalog.ProductInput{
		Name:            r.PostFormValue("name"),
		SKU:             r.PostFormValue("sku"),
		Image:           r.PostFormValue("image"),
		CountryOfOrigin: r.PostFormValue("country_of_origin"),
		Description:     r.PostFormValue("description"),
		Specs:           map[string]string{},
	}
	if id := optionalID(verrs, "category_id", r.PostFormValue("category_id")); id != nil {
		in.CategoryID = *id
	}
	if id := optionalID(verrs, "brand_id", r.PostFormValue("brand_id")); id != nil {
		in.BrandID = *id
	}

	if form.OriginalPrice == "" {
		verrs.Add("original_price", "This field is required.")
	} else if d, err := decimal.NewFromString(form.OriginalPrice); err != nil {
		verrs.Add("original_price", "Enter a number.")
	} else {
		in.OriginalPrice = d
	}
	if form.DiscountedPrice != "" {
		if d, err := decimal.NewFromString(form.DiscountedPrice); err != nil {
			verrs.Add("discounted_price", "Enter a number.")
		} else {
			in.DiscountedPrice = decimal.NewNullDecimal(d)
		}
	}

	for _, group := range catalog.SpecGroups {
		for _, field := range group.Fields {
			if value := r.PostFormValue("spec_" + field.Key); value != "" {
				in.Specs[field.Key] = value
			}
		}
	}
	in.Related = idList(verrs, "related", r.PostForm["related"])
	in.Compatible = idList(verrs, "compatible", r.PostForm["compatible"])
	form.Input = in
	return form, verrs
}

// ============================================================================
// CLONE
// ============================================================================

func (h *Handler) showClone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	source, _, err := h.catalog.ProductWithLinks(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderClone(w, r, http.StatusOK, source, catalog.CloneInput{}, nil)
}

func (h *Handler) cloneProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := catalog.CloneInput{Name: r.PostFormValue("model_name"), SKU: r.PostFormValue("sku")}
	clone, err := h.catalog.Clone(r.Context(), actorID(r), id, in)
	switch {
	case err == nil:
		h.done(w, r, "/admin/products/"+strconv.FormatInt(clone.ID, 10)+"/",
			"Product cloned successfully as \""+clone.Name+"\".")
	case errors.Is(err, shared.ErrDuplicate):
		flash(r, shared.FlashError, conflictMessage(err))
		http.Redirect(w, r, "/admin/products/"+strconv.FormatInt(id, 10)+"/clone", http.StatusSeeOther)
	case errors.Is(err, shared.ErrValidation):
		source, _, loadErr := h.catalog.ProductWithLinks(r.Context(), id)
		if loadErr != nil {
			h.fail(w, r, loadErr)
			return
		}
		h.renderClone(w, r, http.StatusBadRequest, source, in, shared.FieldErrors(err))
	default:
		h.fail(w, r, err)
	}
}

func (h *Handler) renderClone(w http.ResponseWriter, r *http.Request, status int, source catalog.Product, in catalog.CloneInput, verrs shared.ValidationErrors) {
	h.render(w, r, status, "admin/product_clone.html", "Clone product", map[string]any{
		"Source": source,
		"Form":   in,
		"Errors": verrs,
	})
}

func conflictMessage(err error) string {
	var conflict *catalog.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Message
	}
	return err.Error()
}

// ============================================================================
// FORM HELPERS
// ============================================================================

func optionalID(verrs shared.ValidationErrors, field, raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		verrs.Add(field, "Select a valid choice.")
		return nil
	}
	return &id
}

func idList(verrs shared.ValidationErrors, field string, raw []string) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		if id := optionalID(verrs, field, v); id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}
