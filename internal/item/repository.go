package item

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func orderClause(sort string) string {
	switch sort {
	case SortPriceAsc:
		return "price ASC, created_at DESC"
	case SortPriceDesc:
		return "price DESC, created_at DESC"
	case SortViews:
		return "view_count DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func (r *Repository) List(ctx context.Context, query ListQuery) ([]Item, error) {
	sqlQuery := `
		SELECT id, name, description, price, is_sold, view_count, created_at, updated_at
		FROM items
	`
	args := []any{}
	if query.Search != "" {
		sqlQuery += ` WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'`
		args = append(args, query.Search)
	}
	sqlQuery += ` ORDER BY ` + orderClause(query.Sort)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.IsSold, &it.ViewCount, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Images = make([]ItemImage, 0)
		items = append(items, it)
		ids = append(ids, it.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	if len(items) == 0 {
		return items, nil
	}

	images, err := r.imagesForItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string][]ItemImage, len(items))
	for _, img := range images {
		byItem[img.ItemID] = append(byItem[img.ItemID], img)
	}
	for i := range items {
		if imgs, ok := byItem[items[i].ID]; ok {
			items[i].Images = imgs
		}
	}

	return items, nil
}

func (r *Repository) imagesForItems(ctx context.Context, itemIDs []string) ([]ItemImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_id, filename, is_primary
		FROM item_images
		WHERE item_id = ANY($1)
		ORDER BY is_primary DESC, id ASC
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("query item images: %w", err)
	}
	defer rows.Close()

	images := make([]ItemImage, 0)
	for rows.Next() {
		var img ItemImage
		if err := rows.Scan(&img.ID, &img.ItemID, &img.Filename, &img.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan item image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item images: %w", err)
	}

	return images, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Item, error) {
	var it Item
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, is_sold, view_count, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id).Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.IsSold, &it.ViewCount, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("query item: %w", err)
	}

	it.Images = make([]ItemImage, 0)
	images, err := r.imagesForItems(ctx, []string{id})
	if err != nil {
		return Item{}, err
	}
	it.Images = append(it.Images, images...)

	return it, nil
}

// IncrementViewCount is a single atomic update. A lost increment under
// concurrent reads is acceptable.
func (r *Repository) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE items SET view_count = view_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}

	return nil
}

func (r *Repository) Create(ctx context.Context, input ItemInput) (Item, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Item{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	it := Item{
		ID:          id.String(),
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		IsSold:      input.IsSold,
		CreatedAt:   now,
		UpdatedAt:   now,
		Images:      make([]ItemImage, 0),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO items (id, name, description, price, is_sold, view_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`, it.ID, it.Name, it.Description, it.Price, it.IsSold, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}

	return it, nil
}

func (r *Repository) Update(ctx context.Context, id string, input ItemInput) (Item, error) {
	var it Item
	now := time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		UPDATE items
		SET name = $2, description = $3, price = $4, is_sold = $5, updated_at = $6
		WHERE id = $1
		RETURNING id, name, description, price, is_sold, view_count, created_at, updated_at
	`, id, input.Name, input.Description, input.Price, input.IsSold, now).
		Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.IsSold, &it.ViewCount, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("update item: %w", err)
	}

	it.Images = make([]ItemImage, 0)
	images, err := r.imagesForItems(ctx, []string{id})
	if err != nil {
		return Item{}, err
	}
	it.Images = append(it.Images, images...)

	return it, nil
}

// Delete removes the item row (image rows cascade) and returns the
// image filenames so the caller can remove the files from disk.
func (r *Repository) Delete(ctx context.Context, id string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT filename FROM item_images WHERE item_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query image filenames: %w", err)
	}

	filenames := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan image filename: %w", err)
		}
		filenames = append(filenames, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate image filenames: %w", err)
	}
	rows.Close()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete tx: %w", err)
	}

	return filenames, nil
}

func (r *Repository) AddImage(ctx context.Context, itemID, filename string, isPrimary bool) (ItemImage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return ItemImage{}, fmt.Errorf("generate image id: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return ItemImage{}, fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return ItemImage{}, sql.ErrNoRows
	}

	img := ItemImage{ID: id.String(), ItemID: itemID, Filename: filename, IsPrimary: isPrimary}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO item_images (id, item_id, filename, is_primary)
		VALUES ($1, $2, $3, $4)
	`, img.ID, img.ItemID, img.Filename, img.IsPrimary)
	if err != nil {
		return ItemImage{}, fmt.Errorf("insert item image: %w", err)
	}

	return img, nil
}

func (r *Repository) DeleteImage(ctx context.Context, itemID, imageID string) (string, error) {
	var filename string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM item_images
		WHERE id = $1 AND item_id = $2
		RETURNING filename
	`, imageID, itemID).Scan(&filename)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("delete item image: %w", err)
	}

	return filename, nil
}

func (r *Repository) SetPrimaryImage(ctx context.Context, itemID, imageID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin primary image tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE item_images SET is_primary = TRUE
		WHERE id = $1 AND item_id = $2
	`, imageID, itemID)
	if err != nil {
		return fmt.Errorf("set primary image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("primary image rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE item_images SET is_primary = FALSE
		WHERE item_id = $1 AND id <> $2
	`, itemID, imageID); err != nil {
		return fmt.Errorf("clear other primary flags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit primary image tx: %w", err)
	}

	return nil
}
