package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subrite/subkey/internal/db"
)

type fakeAdminStore struct {
	licenses []*db.License
	devices  []*db.DeviceActivation
	revoked  map[string]db.LicenseStatus
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{revoked: make(map[string]db.LicenseStatus)}
}

func (f *fakeAdminStore) ListLicenses(_ context.Context, limit, offset int) ([]*db.License, int, error) {
	total := len(f.licenses)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return f.licenses[offset:end], total, nil
}

func (f *fakeAdminStore) GetLicenseByKey(_ context.Context, key string) (*db.License, error) {
	for _, lic := range f.licenses {
		if lic.Key == key {
			return lic, nil
		}
	}
	return nil, nil
}

func (f *fakeAdminStore) RevokeLicense(_ context.Context, key string, status db.LicenseStatus) error {
	f.revoked[key] = status
	return nil
}

func (f *fakeAdminStore) ListActiveDevices(_ context.Context, _ int64) ([]*db.DeviceActivation, error) {
	return f.devices, nil
}

func setupAdminRouter(store *fakeAdminStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAdminHandler(store, zerolog.Nop())
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestAdminListLicenses(t *testing.T) {
	store := newFakeAdminStore()
	for i := 0; i < 3; i++ {
		store.licenses = append(store.licenses, &db.License{ID: int64(i + 1), Key: wellFormedKey, Status: db.LicenseStatusActive})
	}
	r := setupAdminRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/licenses?limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Licenses []*db.License `json:"licenses"`
		Total    int           `json:"total"`
		Limit    int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Licenses, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
}

func TestAdminListLicensesClampsBadPagination(t *testing.T) {
	r := setupAdminRouter(newFakeAdminStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/licenses?limit=-5&offset=banana", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(50), resp["limit"])
	assert.Equal(t, float64(0), resp["offset"])
}

func TestAdminGetLicense(t *testing.T) {
	store := newFakeAdminStore()
	store.licenses = append(store.licenses, &db.License{ID: 1, Key: wellFormedKey, Email: "a@b.com", Status: db.LicenseStatusActive})
	store.devices = append(store.devices, &db.DeviceActivation{ID: 11, LicenseID: 1, DeviceFingerprint: "fp-1"})
	r := setupAdminRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/licenses/"+wellFormedKey, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		License *db.License            `json:"license"`
		Devices []*db.DeviceActivation `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.License)
	assert.Equal(t, wellFormedKey, resp.License.Key)
	assert.Len(t, resp.Devices, 1)
}

func TestAdminGetLicenseNotFound(t *testing.T) {
	r := setupAdminRouter(newFakeAdminStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/licenses/"+wellFormedKey, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRevokeLicense(t *testing.T) {
	store := newFakeAdminStore()
	r := setupAdminRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/licenses/"+wellFormedKey+"/revoke", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, db.LicenseStatusRevoked, store.revoked[wellFormedKey])
}
