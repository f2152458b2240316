package catalog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"golang.org/x/sync/errgroup"

	"github.com/sisl-bd/eshop/internal/shared"
)

// Service implements storefront reads and staff catalog maintenance.
type Service struct {
	repo     Repository
	cache    *Cache
	validate *validator.Validate
}

// NewService constructs the catalog service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, validate: shared.NewValidator()}
}

// ============================================================================
// STOREFRONT
// ============================================================================

// Home returns the landing page: root categories, the first banner and the
// newest products of each featured category.
func (s *Service) Home(ctx context.Context) (HomePage, error) {
	key, err := s.cache.Key(ctx, "home")
	if err != nil {
		return s.loadHome(ctx)
	}
	var page HomePage
	err = s.cache.Fetch(ctx, key, &page, func(ctx context.Context) (any, error) {
		return s.loadHome(ctx)
	})
	return page, err
}

func (s *Service) loadHome(ctx context.Context) (HomePage, error) {
	var page HomePage
	page.Sections = make([]HomeSection, len(HomeSectionNames))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		categories, err := s.repo.ListCategories(gctx, CategoryFilter{RootOnly: true})
		page.Categories = categories
		return err
	})
	g.Go(func() error {
		banner, err := s.repo.FirstBanner(gctx)
		page.Banner = banner
		return err
	})
	for i, name := range HomeSectionNames {
		g.Go(func() error {
			section := HomeSection{Title: name}
			category, err := s.repo.FindCategory(gctx, name)
			if errors.Is(err, ErrNotFound) {
				page.Sections[i] = section
				return nil
			}
			if err != nil {
				return err
			}
			products, _, err := s.repo.ListProducts(gctx, ProductFilter{
				CategoryID:  &category.ID,
				Limit:       HomeSectionSize,
				NewestFirst: true,
			})
			if err != nil {
				return fmt.Errorf("home section %s: %w", name, err)
			}
			section.Category = &category
			section.Products = products
			page.Sections[i] = section
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return HomePage{}, err
	}
	return page, nil
}

// ProductBySKU returns a product with its related and compatible products.
func (s *Service) ProductBySKU(ctx context.Context, sku string) (ProductDetail, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ProductDetail{}, ErrNotFound
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return ProductDetail{}, err
	}
	detail := ProductDetail{Product: product}
	if detail.Related, err = s.repo.LinkedProducts(ctx, product.ID, LinkRelated); err != nil {
		return ProductDetail{}, err
	}
	if detail.Compatible, err = s.repo.LinkedProducts(ctx, product.ID, LinkCompatible); err != nil {
		return ProductDetail{}, err
	}
	return detail, nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrNotFound
	}
	return s.repo.GetProduct(ctx, id)
}

// CategoryPage is a category with its subcategories and products.
type CategoryPage struct {
	Category      Category
	Subcategories []Category
	Products      []Product
}

// CategoryByName resolves a category by case-insensitive name or slug and
// lists its products.
func (s *Service) CategoryByName(ctx context.Context, name string) (CategoryPage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CategoryPage{}, ErrNotFound
	}
	key, err := s.cache.Key(ctx, "category", name)
	if err != nil {
		return s.loadCategory(ctx, name)
	}
	var page CategoryPage
	err = s.cache.Fetch(ctx, key, &page, func(ctx context.Context) (any, error) {
		return s.loadCategory(ctx, name)
	})
	return page, err
}

func (s *Service) loadCategory(ctx context.Context, name string) (CategoryPage, error) {
	category, err := s.repo.FindCategory(ctx, name)
	if err != nil {
		return CategoryPage{}, err
	}
	page := CategoryPage{Category: category}
	if page.Subcategories, err = s.repo.ListCategories(ctx, CategoryFilter{ParentID: &category.ID}); err != nil {
		return CategoryPage{}, err
	}
	if page.Products, _, err = s.repo.ListProducts(ctx, ProductFilter{CategoryID: &category.ID}); err != nil {
		return CategoryPage{}, err
	}
	return page, nil
}

// BrandPage returns a brand and its products.
func (s *Service) BrandPage(ctx context.Context, id int64) (Brand, []Product, error) {
	brand, err := s.repo.GetBrand(ctx, id)
	if err != nil {
		return Brand{}, nil, err
	}
	products, _, err := s.repo.ListProducts(ctx, ProductFilter{BrandID: &brand.ID})
	if err != nil {
		return Brand{}, nil, err
	}
	return brand, products, nil
}

// Search matches products whose name contains q, ignoring case. An empty
// query yields no results.
func (s *Service) Search(ctx context.Context, q string) ([]Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	products, _, err := s.repo.ListProducts(ctx, ProductFilter{Search: q})
	return products, err
}

// ============================================================================
// CATEGORIES
// ============================================================================

// Categories lists every category.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx, CategoryFilter{})
}

// Category returns a category by id.
func (s *Service) Category(ctx context.Context, id int64) (Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// CreateCategory validates and stores a category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	in = normalizeCategory(in)
	if err := shared.ValidateStruct(s.validate, in).Err(); err != nil {
		return Category{}, err
	}
	category, err := s.repo.CreateCategory(ctx, Category{Name: in.Name, Slug: slug.Make(in.Name), ParentID: in.ParentID})
	if err != nil {
		return Category{}, err
	}
	s.invalidate(ctx)
	return category, nil
}

// UpdateCategory validates and updates a category. A category cannot become
// its own ancestor.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) error {
	in = normalizeCategory(in)
	verrs := shared.ValidateStruct(s.validate, in)
	if in.ParentID != nil {
		if *in.ParentID == id {
			verrs.Add("parent_id", "A category cannot be its own parent.")
		} else {
			nested, err := s.repo.IsDescendant(ctx, id, *in.ParentID)
			if err != nil {
				return err
			}
			if nested {
				verrs.Add("parent_id", "A category cannot be nested under its own subcategory.")
			}
		}
	}
	if err := verrs.Err(); err != nil {
		return err
	}
	if err := s.repo.UpdateCategory(ctx, Category{ID: id, Name: in.Name, Slug: slug.Make(in.Name), ParentID: in.ParentID}); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteCategory removes a category with its subcategories and products.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ============================================================================
// BRANDS & BANNERS
// ============================================================================

// Brands lists every brand.
func (s *Service) Brands(ctx context.Context) ([]Brand, error) {
	return s.repo.ListBrands(ctx)
}

// Brand returns a brand by id.
func (s *Service) Brand(ctx context.Context, id int64) (Brand, error) {
	return s.repo.GetBrand(ctx, id)
}

// CreateBrand validates and stores a brand.
func (s *Service) CreateBrand(ctx context.Context, in BrandInput) (Brand, error) {
	in = normalizeBrand(in)
	if err := shared.ValidateStruct(s.validate, in).Err(); err != nil {
		return Brand{}, err
	}
	brand, err := s.repo.CreateBrand(ctx, Brand{Name: in.Name, Logo: in.Logo, Description: in.Description})
	if err != nil {
		return Brand{}, err
	}
	s.invalidate(ctx)
	return brand, nil
}

// UpdateBrand validates and updates a brand.
func (s *Service) UpdateBrand(ctx context.Context, id int64, in BrandInput) error {
	in = normalizeBrand(in)
	if err := shared.ValidateStruct(s.validate, in).Err(); err != nil {
		return err
	}
	if err := s.repo.UpdateBrand(ctx, Brand{ID: id, Name: in.Name, Logo: in.Logo, Description: in.Description}); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteBrand removes a brand and its products.
func (s *Service) DeleteBrand(ctx context.Context, id int64) error {
	if err := s.repo.DeleteBrand(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Banners lists every banner.
func (s *Service) Banners(ctx context.Context) ([]Banner, error) {
	return s.repo.ListBanners(ctx)
}

// Banner returns a banner by id.
func (s *Service) Banner(ctx context.Context, id int64) (Banner, error) {
	return s.repo.GetBanner(ctx, id)
}

// CreateBanner validates and stores a banner.
func (s *Service) CreateBanner(ctx context.Context, in BannerInput) (Banner, error) {
	in.Title, in.Image = strings.TrimSpace(in.Title), strings.TrimSpace(in.Image)
	if err := shared.ValidateStruct(s.validate, in).Err(); err != nil {
		return Banner{}, err
	}
	banner, err := s.repo.CreateBanner(ctx, Banner{Title: in.Title, Image: in.Image})
	if err != nil {
		return Banner{}, err
	}
	s.invalidate(ctx)
	return banner, nil
}

// UpdateBanner validates and updates a banner.
func (s *Service) UpdateBanner(ctx context.Context, id int64, in BannerInput) error {
	in.Title, in.Image = strings.TrimSpace(in.Title), strings.TrimSpace(in.Image)
	if err := shared.ValidateStruct(s.validate, in).Err(); err != nil {
		return err
	}
	if err := s.repo.UpdateBanner(ctx, Banner{ID: id, Title: in.Title, Image: in.Image}); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteBanner removes a banner.
func (s *Service) DeleteBanner(ctx context.Context, id int64) error {
	if err := s.repo.DeleteBanner(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ============================================================================
// PRODUCTS
// ============================================================================

// Products lists products for the admin surface.
func (s *Service) Products(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filter)
}

// ProductWithLinks returns a product and the ids of both link sets.
func (s *Service) ProductWithLinks(ctx context.Context, id int64) (Product, Links, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, Links{}, err
	}
	links, err := s.repo.Links(ctx, id)
	if err != nil {
		return Product{}, Links{}, err
	}
	return product, links, nil
}

// CreateProduct validates and stores a product with its link sets.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	in = normalizeProduct(in)
	if err := validateProduct(s.validate, in, 0); err != nil {
		return Product{}, err
	}
	var created Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := checkConflicts(ctx, repo, in.Name, in.SKU, 0); err != nil {
			return err
		}
		product, err := repo.CreateProduct(ctx, productFromInput(in))
		if err != nil {
			return err
		}
		if err := replaceLinks(ctx, repo, product.ID, Links{Related: in.Related, Compatible: in.Compatible}); err != nil {
			return err
		}
		created = product
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx)
	return created, nil
}

// UpdateProduct validates and updates a product and replaces its link sets.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) error {
	in = normalizeProduct(in)
	if err := validateProduct(s.validate, in, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := checkConflicts(ctx, repo, in.Name, in.SKU, id); err != nil {
			return err
		}
		product := productFromInput(in)
		product.ID = id
		if err := repo.UpdateProduct(ctx, product); err != nil {
			return err
		}
		return replaceLinks(ctx, repo, id, Links{Related: in.Related, Compatible: in.Compatible})
	})
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// DeleteProduct removes a product; its links and quotation lines cascade.
func (s *Service) DeleteProduct(ctx context.Context, actorID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		product, err := repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteProduct(ctx, id); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditProductDelete,
			Entity:   "product",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"name": product.Name, "sku": product.SKU},
		})
	})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// Clone copies a product under a new model name and SKU, including every
// scalar field and both link sets, in a single transaction.
func (s *Service) Clone(ctx context.Context, actorID, sourceID int64, in CloneInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	sku := strings.TrimSpace(in.SKU)

	verrs := shared.ValidationErrors{}
	if name == "" {
		verrs.Add("model_name", "Model Name is required to clone the product.")
	} else if len(name) > 255 {
		verrs.Add("model_name", "Ensure this value has at most 255 characters.")
	}
	if sku == "" {
		verrs.Add("sku", "SKU is required to clone the product.")
	} else if len(sku) > 50 {
		verrs.Add("sku", "Ensure this value has at most 50 characters.")
	}
	if err := verrs.Err(); err != nil {
		return Product{}, err
	}

	var clone Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		source, err := repo.GetProduct(ctx, sourceID)
		if err != nil {
			return err
		}
		if err := checkConflicts(ctx, repo, name, sku, 0); err != nil {
			return err
		}
		links, err := repo.Links(ctx, source.ID)
		if err != nil {
			return err
		}

		copied := source
		copied.ID = 0
		copied.Name = name
		copied.SKU = sku
		copied.Specs = maps.Clone(source.Specs)
		created, err := repo.CreateProduct(ctx, copied)
		if err != nil {
			return err
		}
		if err := replaceLinks(ctx, repo, created.ID, links); err != nil {
			return err
		}
		created.CategoryName = source.CategoryName
		created.BrandName = source.BrandName
		clone = created

		return repo.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditProductClone,
			Entity:   "product",
			EntityID: strconv.FormatInt(created.ID, 10),
			Meta:     map[string]any{"source_id": source.ID, "name": name, "sku": sku},
		})
	})
	if err != nil {
		return Product{}, fmt.Errorf("clone product: %w", err)
	}
	s.invalidate(ctx)
	return clone, nil
}

func checkConflicts(ctx context.Context, repo Repository, name, sku string, excludeID int64) error {
	nameExists, skuExists, err := repo.ProductConflicts(ctx, name, sku, excludeID)
	if err != nil {
		return err
	}
	if nameExists {
		return nameTaken(name)
	}
	if skuExists {
		return skuTaken(sku)
	}
	return nil
}

func replaceLinks(ctx context.Context, repo Repository, productID int64, links Links) error {
	if err := repo.ReplaceLinks(ctx, productID, LinkRelated, links.Related); err != nil {
		return err
	}
	return repo.ReplaceLinks(ctx, productID, LinkCompatible, links.Compatible)
}

func productFromInput(in ProductInput) Product {
	return Product{
		CategoryID:      in.CategoryID,
		BrandID:         in.BrandID,
		Name:            in.Name,
		SKU:             in.SKU,
		OriginalPrice:   in.OriginalPrice,
		DiscountedPrice: in.DiscountedPrice,
		Image:           in.Image,
		CountryOfOrigin: in.CountryOfOrigin,
		Description:     in.Description,
		Specs:           in.Specs,
	}
}

// invalidate drops cached storefront pages. A failed bump only leaves pages
// stale until their TTL expires.
func (s *Service) invalidate(ctx context.Context) {
	_ = s.cache.Bump(ctx)
}
