package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	current Settings
}

func (f *fakeRepo) Get(ctx context.Context) (Settings, error) {
	return f.current, nil
}

func (f *fakeRepo) Update(ctx context.Context, input SettingsInput) (Settings, error) {
	f.current = Settings{
		SiteName:       input.SiteName,
		WelcomeMessage: input.WelcomeMessage,
		GeneralInfo:    input.GeneralInfo,
		ContactInfo:    input.ContactInfo,
		UpdatedAt:      time.Now().UTC(),
	}
	return f.current, nil
}

func TestGetSettings(t *testing.T) {
	repo := &fakeRepo{current: Settings{SiteName: "Loppis"}}
	handler := NewHandler(repo)

	rec := httptest.NewRecorder()
	handler.GetSettings(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"site_name":"Loppis"`)
}

func TestUpdateSettingsValidation(t *testing.T) {
	handler := NewHandler(&fakeRepo{})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.UpdateSettings(rec, req)
		return rec
	}

	rec := send(`{"site_name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(`{"site_name":"` + strings.Repeat("x", 101) + `"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(`{"site_name":"Loppis","welcome_message":"Hej","general_info":"","contact_info":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"welcome_message":"Hej"`)
}
