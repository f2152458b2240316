package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisl-bd/eshop/internal/platform/db"
	"github.com/sisl-bd/eshop/internal/shared"
)

// CategoryFilter narrows category listings.
type CategoryFilter struct {
	RootOnly bool
	ParentID *int64
}

// Repository persists the catalog.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListCategories(ctx context.Context, filter CategoryFilter) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	FindCategory(ctx context.Context, key string) (Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, id int64) error
	IsDescendant(ctx context.Context, ancestorID, id int64) (bool, error)

	ListBrands(ctx context.Context) ([]Brand, error)
	GetBrand(ctx context.Context, id int64) (Brand, error)
	CreateBrand(ctx context.Context, brand Brand) (Brand, error)
	UpdateBrand(ctx context.Context, brand Brand) error
	DeleteBrand(ctx context.Context, id int64) error

	ListBanners(ctx context.Context) ([]Banner, error)
	FirstBanner(ctx context.Context) (*Banner, error)
	GetBanner(ctx context.Context, id int64) (Banner, error)
	CreateBanner(ctx context.Context, banner Banner) (Banner, error)
	UpdateBanner(ctx context.Context, banner Banner) error
	DeleteBanner(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	ProductConflicts(ctx context.Context, name, sku string, excludeID int64) (nameTaken, skuTaken bool, err error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, id int64) error
	LinkedProducts(ctx context.Context, productID int64, kind LinkKind) ([]Product, error)
	Links(ctx context.Context, productID int64) (Links, error)
	ReplaceLinks(ctx context.Context, productID int64, kind LinkKind, ids []int64) error

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
	now  func() time.Time
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, db: pool, now: time.Now}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, now: r.now})
	})
}

// --- categories ---

const categoryColumns = `id, name, slug, parent_id, created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.CreatedAt)
	return c, err
}

func (r *repository) ListCategories(ctx context.Context, filter CategoryFilter) ([]Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE 1=1`
	var args []any
	if filter.RootOnly {
		query += ` AND parent_id IS NULL`
	}
	if filter.ParentID != nil {
		args = append(args, *filter.ParentID)
		query += ` AND parent_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	return c, notFound(err)
}

func (r *repository) FindCategory(ctx context.Context, key string) (Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories
WHERE LOWER(name) = LOWER($1) OR slug = LOWER($1)
ORDER BY (LOWER(name) = LOWER($1)) DESC, id LIMIT 1`, key))
	return c, notFound(err)
}

func (r *repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	category.CreatedAt = r.now()
	err := r.db.QueryRow(ctx, `INSERT INTO categories (name, slug, parent_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		category.Name, category.Slug, category.ParentID, category.CreatedAt).Scan(&category.ID)
	if err != nil {
		return Category{}, categoryConflict(err, category.Name)
	}
	return category, nil
}

func (r *repository) UpdateCategory(ctx context.Context, category Category) error {
	tag, err := r.db.Exec(ctx, `UPDATE categories SET name = $1, slug = $2, parent_id = $3 WHERE id = $4`,
		category.Name, category.Slug, category.ParentID, category.ID)
	if err != nil {
		return categoryConflict(err, category.Name)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteCategory(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, `DELETE FROM categories WHERE id = $1`, id)
}

func (r *repository) IsDescendant(ctx context.Context, ancestorID, id int64) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `WITH RECURSIVE tree AS (
	SELECT id FROM categories WHERE parent_id = $1
	UNION
	SELECT c.id FROM categories c JOIN tree t ON c.parent_id = t.id
)
SELECT EXISTS (SELECT 1 FROM tree WHERE id = $2)`, ancestorID, id).Scan(&found)
	return found, err
}

// --- brands ---

func (r *repository) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, logo, description, created_at FROM brands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var brands []Brand
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Logo, &b.Description, &b.CreatedAt); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (r *repository) GetBrand(ctx context.Context, id int64) (Brand, error) {
	var b Brand
	err := r.db.QueryRow(ctx, `SELECT id, name, logo, description, created_at FROM brands WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Logo, &b.Description, &b.CreatedAt)
	return b, notFound(err)
}

func (r *repository) CreateBrand(ctx context.Context, brand Brand) (Brand, error) {
	brand.CreatedAt = r.now()
	err := r.db.QueryRow(ctx, `INSERT INTO brands (name, logo, description, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		brand.Name, brand.Logo, brand.Description, brand.CreatedAt).Scan(&brand.ID)
	return brand, err
}

func (r *repository) UpdateBrand(ctx context.Context, brand Brand) error {
	tag, err := r.db.Exec(ctx, `UPDATE brands SET name = $1, logo = $2, description = $3 WHERE id = $4`,
		brand.Name, brand.Logo, brand.Description, brand.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteBrand(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, `DELETE FROM brands WHERE id = $1`, id)
}

// --- banners ---

func (r *repository) ListBanners(ctx context.Context) ([]Banner, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title, image, created_at FROM banners ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var banners []Banner
	for rows.Next() {
		var b Banner
		if err := rows.Scan(&b.ID, &b.Title, &b.Image, &b.CreatedAt); err != nil {
			return nil, err
		}
		banners = append(banners, b)
	}
	return banners, rows.Err()
}

func (r *repository) FirstBanner(ctx context.Context) (*Banner, error) {
	var b Banner
	err := r.db.QueryRow(ctx, `SELECT id, title, image, created_at FROM banners ORDER BY id LIMIT 1`).
		Scan(&b.ID, &b.Title, &b.Image, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) GetBanner(ctx context.Context, id int64) (Banner, error) {
	var b Banner
	err := r.db.QueryRow(ctx, `SELECT id, title, image, created_at FROM banners WHERE id = $1`, id).
		Scan(&b.ID, &b.Title, &b.Image, &b.CreatedAt)
	return b, notFound(err)
}

func (r *repository) CreateBanner(ctx context.Context, banner Banner) (Banner, error) {
	banner.CreatedAt = r.now()
	err := r.db.QueryRow(ctx, `INSERT INTO banners (title, image, created_at) VALUES ($1, $2, $3) RETURNING id`,
		banner.Title, banner.Image, banner.CreatedAt).Scan(&banner.ID)
	return banner, err
}

func (r *repository) UpdateBanner(ctx context.Context, banner Banner) error {
	tag, err := r.db.Exec(ctx, `UPDATE banners SET title = $1, image = $2 WHERE id = $3`, banner.Title, banner.Image, banner.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteBanner(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, `DELETE FROM banners WHERE id = $1`, id)
}

// --- products ---

const productSelect = `SELECT p.id, p.category_id, p.brand_id, p.name, p.sku, p.original_price, p.discounted_price,
	p.image, p.country_of_origin, p.description, p.specs, p.created_at, p.updated_at, c.name, b.name
FROM products p
JOIN categories c ON c.id = p.category_id
JOIN brands b ON b.id = p.brand_id`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.BrandID, &p.Name, &p.SKU, &p.OriginalPrice, &p.DiscountedPrice,
		&p.Image, &p.CountryOfOrigin, &p.Description, &p.Specs, &p.CreatedAt, &p.UpdatedAt, &p.CategoryName, &p.BrandName)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where += ` AND p.category_id = $` + strconv.Itoa(len(args))
	}
	if filter.BrandID != nil {
		args = append(args, *filter.BrandID)
		where += ` AND p.brand_id = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		where += ` AND p.name ILIKE $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := productSelect + where
	if filter.NewestFirst {
		query += ` ORDER BY p.id DESC`
	} else {
		query += ` ORDER BY p.name`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + strconv.Itoa(len(args))
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	products, err := collectProducts(rows)
	return products, total, err
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, productSelect+` WHERE p.id = $1`, id))
	return p, notFound(err)
}

func (r *repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, productSelect+` WHERE p.sku = $1`, sku))
	return p, notFound(err)
}

func (r *repository) ProductConflicts(ctx context.Context, name, sku string, excludeID int64) (bool, bool, error) {
	var nameTaken, skuTaken bool
	err := r.db.QueryRow(ctx, `SELECT
	EXISTS (SELECT 1 FROM products WHERE name = $1 AND id <> $3),
	EXISTS (SELECT 1 FROM products WHERE sku = $2 AND id <> $3)`, name, sku, excludeID).Scan(&nameTaken, &skuTaken)
	return nameTaken, skuTaken, err
}

func (r *repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	now := r.now()
	product.CreatedAt, product.UpdatedAt = now, now
	if product.Specs == nil {
		product.Specs = map[string]string{}
	}
	err := r.db.QueryRow(ctx, `INSERT INTO products
	(category_id, brand_id, name, sku, original_price, discounted_price, image, country_of_origin, description, specs, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		product.CategoryID, product.BrandID, product.Name, product.SKU, product.OriginalPrice, product.DiscountedPrice,
		product.Image, product.CountryOfOrigin, product.Description, product.Specs, product.CreatedAt, product.UpdatedAt,
	).Scan(&product.ID)
	if err != nil {
		return Product{}, productConflict(err, product)
	}
	return product, nil
}

func (r *repository) UpdateProduct(ctx context.Context, product Product) error {
	if product.Specs == nil {
		product.Specs = map[string]string{}
	}
	tag, err := r.db.Exec(ctx, `UPDATE products SET
	category_id = $1, brand_id = $2, name = $3, sku = $4, original_price = $5, discounted_price = $6,
	image = $7, country_of_origin = $8, description = $9, specs = $10, updated_at = $11
WHERE id = $12`,
		product.CategoryID, product.BrandID, product.Name, product.SKU, product.OriginalPrice, product.DiscountedPrice,
		product.Image, product.CountryOfOrigin, product.Description, product.Specs, r.now(), product.ID)
	if err != nil {
		return productConflict(err, product)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, id)
}

func (r *repository) LinkedProducts(ctx context.Context, productID int64, kind LinkKind) ([]Product, error) {
	rows, err := r.db.Query(ctx, productSelect+`
JOIN product_links l ON l.linked_product_id = p.id
WHERE l.product_id = $1 AND l.kind = $2
ORDER BY p.name`, productID, string(kind))
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *repository) Links(ctx context.Context, productID int64) (Links, error) {
	rows, err := r.db.Query(ctx, `SELECT linked_product_id, kind FROM product_links WHERE product_id = $1 ORDER BY linked_product_id`, productID)
	if err != nil {
		return Links{}, err
	}
	defer rows.Close()
	var links Links
	for rows.Next() {
		var (
			id   int64
			kind string
		)
		if err := rows.Scan(&id, &kind); err != nil {
			return Links{}, err
		}
		switch LinkKind(kind) {
		case LinkRelated:
			links.Related = append(links.Related, id)
		case LinkCompatible:
			links.Compatible = append(links.Compatible, id)
		}
	}
	return links, rows.Err()
}

func (r *repository) ReplaceLinks(ctx context.Context, productID int64, kind LinkKind, ids []int64) error {
	if !kind.Valid() {
		return fmt.Errorf("catalog: unknown link kind %q", kind)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM product_links WHERE product_id = $1 AND kind = $2`, productID, string(kind)); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `INSERT INTO product_links (product_id, linked_product_id, kind, created_at)
SELECT $1, linked, $2, $3 FROM UNNEST($4::bigint[]) AS linked
ON CONFLICT DO NOTHING`, productID, string(kind), r.now(), ids)
	if _, fk := db.ForeignKeyViolation(err); fk {
		return fmt.Errorf("link %s products: %w", kind, ErrNotFound)
	}
	return err
}

// RecordAudit writes the audit entry on the same connection, so inside
// WithTx it commits or rolls back with the change it describes.
func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.db).Record(ctx, log)
}

// --- helpers ---

func (r *repository) deleteByID(ctx context.Context, query string, id int64) error {
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func categoryConflict(err error, name string) error {
	if _, ok := db.UniqueViolation(err); ok {
		return &ConflictError{Field: "name", Message: fmt.Sprintf("A category named '%s' already exists.", name)}
	}
	return err
}

func productConflict(err error, product Product) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		if _, fk := db.ForeignKeyViolation(err); fk {
			return fmt.Errorf("product category or brand: %w", ErrNotFound)
		}
		return err
	}
	if strings.Contains(constraint, "sku") {
		return skuTaken(product.SKU)
	}
	return nameTaken(product.Name)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
