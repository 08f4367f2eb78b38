package item

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smitius/flea-market/internal/observability"
)

type fakeStore struct {
	items   map[string]*Item
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]*Item)}
}

func (f *fakeStore) add(it Item) *Item {
	if it.Images == nil {
		it.Images = make([]ItemImage, 0)
	}
	f.items[it.ID] = &it
	return f.items[it.ID]
}

func (f *fakeStore) List(ctx context.Context, query ListQuery) ([]Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Item, 0)
	for _, it := range f.items {
		if query.Search != "" {
			haystack := strings.ToLower(it.Name + " " + it.Description)
			if !strings.Contains(haystack, strings.ToLower(query.Search)) {
				continue
			}
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		switch query.Sort {
		case SortPriceAsc:
			return out[i].Price < out[j].Price
		case SortPriceDesc:
			return out[i].Price > out[j].Price
		case SortViews:
			return out[i].ViewCount > out[j].ViewCount
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (Item, error) {
	it, ok := f.items[id]
	if !ok {
		return Item{}, sql.ErrNoRows
	}
	return *it, nil
}

func (f *fakeStore) IncrementViewCount(ctx context.Context, id string) error {
	if it, ok := f.items[id]; ok {
		it.ViewCount++
	}
	return nil
}

func (f *fakeStore) Create(ctx context.Context, input ItemInput) (Item, error) {
	it := Item{
		ID:          "0198c0de-0000-7000-8000-000000000001",
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		IsSold:      input.IsSold,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
		Images:      make([]ItemImage, 0),
	}
	f.items[it.ID] = &it
	return it, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, input ItemInput) (Item, error) {
	it, ok := f.items[id]
	if !ok {
		return Item{}, sql.ErrNoRows
	}
	it.Name = input.Name
	it.Description = input.Description
	it.Price = input.Price
	it.IsSold = input.IsSold
	return *it, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) ([]string, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	filenames := make([]string, 0, len(it.Images))
	for _, img := range it.Images {
		filenames = append(filenames, img.Filename)
	}
	delete(f.items, id)
	return filenames, nil
}

func (f *fakeStore) AddImage(ctx context.Context, itemID, filename string, isPrimary bool) (ItemImage, error) {
	it, ok := f.items[itemID]
	if !ok {
		return ItemImage{}, sql.ErrNoRows
	}
	img := ItemImage{ID: "0198c0de-0000-7000-8000-00000000000a", ItemID: itemID, Filename: filename, IsPrimary: isPrimary}
	it.Images = append(it.Images, img)
	return img, nil
}

func (f *fakeStore) DeleteImage(ctx context.Context, itemID, imageID string) (string, error) {
	it, ok := f.items[itemID]
	if !ok {
		return "", sql.ErrNoRows
	}
	for i, img := range it.Images {
		if img.ID == imageID {
			it.Images = append(it.Images[:i], it.Images[i+1:]...)
			return img.Filename, nil
		}
	}
	return "", sql.ErrNoRows
}

func (f *fakeStore) SetPrimaryImage(ctx context.Context, itemID, imageID string) error {
	it, ok := f.items[itemID]
	if !ok {
		return sql.ErrNoRows
	}
	found := false
	for i := range it.Images {
		it.Images[i].IsPrimary = it.Images[i].ID == imageID
		found = found || it.Images[i].IsPrimary
	}
	if !found {
		return sql.ErrNoRows
	}
	return nil
}

type fakeFiles struct {
	existing map[string]bool
	removed  []string
}

func (f *fakeFiles) Exists(filename string) bool {
	return f.existing[filename]
}

func (f *fakeFiles) Remove(filename string) error {
	f.removed = append(f.removed, filename)
	return nil
}

func newTestHandler() (*Handler, *fakeStore, *fakeFiles) {
	store := newFakeStore()
	files := &fakeFiles{existing: make(map[string]bool)}
	return NewHandler(store, files, observability.NewLogger()), store, files
}

const testItemID = "0198c0de-0000-7000-8000-0000000000ff"

func TestListItemsRejectsUnknownSort(t *testing.T) {
	handler, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/items?sort=sideways", nil)
	rec := httptest.NewRecorder()
	handler.ListItems(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListItemsSearchFilters(t *testing.T) {
	handler, store, _ := newTestHandler()
	store.add(Item{ID: testItemID, Name: "Blue bicycle", Price: 50})
	store.add(Item{ID: "0198c0de-0000-7000-8000-000000000002", Name: "Red lamp", Price: 10})

	req := httptest.NewRequest(http.MethodGet, "/items?q=bicycle", nil)
	rec := httptest.NewRecorder()
	handler.ListItems(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Blue bicycle")
	assert.NotContains(t, rec.Body.String(), "Red lamp")
}

func TestGetItemIncrementsViewCount(t *testing.T) {
	handler, store, _ := newTestHandler()
	store.add(Item{ID: testItemID, Name: "Lamp", Price: 10})

	req := httptest.NewRequest(http.MethodGet, "/items/"+testItemID, nil)
	req.SetPathValue("id", testItemID)
	rec := httptest.NewRecorder()
	handler.GetItem(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"view_count":1`)
	assert.Equal(t, int64(1), store.items[testItemID].ViewCount)
}

func TestGetItemNotFound(t *testing.T) {
	handler, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/items/"+testItemID, nil)
	req.SetPathValue("id", testItemID)
	rec := httptest.NewRecorder()
	handler.GetItem(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateItemValidation(t *testing.T) {
	handler, _, _ := newTestHandler()

	cases := map[string]string{
		"missing name":   `{"name":"","price":10}`,
		"negative price": `{"name":"Lamp","price":-1}`,
		"unknown field":  `{"name":"Lamp","price":10,"bogus":true}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.CreateItem(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateItem(t *testing.T) {
	handler, _, _ := newTestHandler()

	body := `{"name":"Lamp","description":"A nice lamp","price":10,"is_sold":false}`
	req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.CreateItem(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Lamp"`)
}

func TestDeleteItemRemovesImageFiles(t *testing.T) {
	handler, store, files := newTestHandler()
	store.add(Item{ID: testItemID, Name: "Lamp", Price: 10, Images: []ItemImage{
		{ID: "0198c0de-0000-7000-8000-00000000000a", ItemID: testItemID, Filename: "a.jpg"},
		{ID: "0198c0de-0000-7000-8000-00000000000b", ItemID: testItemID, Filename: "b.jpg"},
	}})

	req := httptest.NewRequest(http.MethodDelete, "/items/"+testItemID, nil)
	req.SetPathValue("id", testItemID)
	rec := httptest.NewRecorder()
	handler.DeleteItem(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, files.removed)
}

func TestAddImageRequiresUploadedFile(t *testing.T) {
	handler, store, files := newTestHandler()
	store.add(Item{ID: testItemID, Name: "Lamp", Price: 10})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/items/"+testItemID+"/images", strings.NewReader(body))
		req.SetPathValue("id", testItemID)
		rec := httptest.NewRecorder()
		handler.AddImage(rec, req)
		return rec
	}

	rec := send(`{"filename":"ghost.jpg"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(`{"filename":"../../etc/passwd"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	files.existing["real.jpg"] = true
	rec = send(`{"filename":"real.jpg","is_primary":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
