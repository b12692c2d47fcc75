package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/internal/catalog/service"
	domainstore "regwatch/internal/catalog/store/domain"
	flagstore "regwatch/internal/catalog/store/flag"
	"regwatch/pkg/platform/middleware/admin"
	"regwatch/pkg/testutil"
)

const adminToken = "secret-token"

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newRouter(t *testing.T) (http.Handler, *countingInvalidator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	inv := &countingInvalidator{}
	svc := service.New(domainstore.NewInMemory(), flagstore.NewInMemory(),
		service.WithLogger(logger),
		service.WithSnapshotInvalidator(inv),
	)
	_, err := svc.EnsureFlags(context.Background())
	require.NoError(t, err)

	h := New(svc, logger)
	r := chi.NewRouter()
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	return r, inv
}

func adminRequest(t *testing.T, method, path string, body any) *http.Request {
	req := testutil.NewJSONRequest(t, method, path, body)
	req.Header.Set(admin.HeaderAdminToken, adminToken)
	return req
}

func TestRegisterDomain(t *testing.T) {
	router, _ := newRouter(t)

	testutil.Given(t, "an empty catalog", func(t *testing.T) {
		testutil.When(t, "a domain is registered by fqdn", func(t *testing.T) {
			rr := testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": "Example.COM"}))
			testutil.Then(t, "it is normalised and stored", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				resp := testutil.UnmarshalResponse[DomainResponse](t, rr)
				assert.Equal(t, "example.com", resp.FQDN)
				assert.False(t, resp.IsRegistered)

				get := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/domains/"+resp.ID.String()))
				testutil.AssertStatusOK(t, get)
			})
		})

		testutil.When(t, "the same domain is registered by name and tld", func(t *testing.T) {
			rr := testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/domains", map[string]string{"name": "example", "tld": "com"}))
			testutil.Then(t, "it conflicts", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
			})
		})

		testutil.When(t, "both forms are supplied", func(t *testing.T) {
			rr := testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": "a.org", "name": "a"}))
			testutil.Then(t, "the request is rejected", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
			})
		})

		testutil.When(t, "the admin token is missing", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": "b.org"}))
			testutil.Then(t, "the write is refused", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			})
		})
	})
}

func TestSetSnapshot(t *testing.T) {
	router, inv := newRouter(t)
	rr := testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": "testdomain.org"}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[DomainResponse](t, rr)
	path := "/domains/" + created.ID.String() + "/snapshot"

	t.Run("updates the operator fields and invalidates the cache", func(t *testing.T) {
		rr := testutil.DoRequest(router, adminRequest(t, http.MethodPut, path, map[string]bool{"is_registered": true, "clear_status": false}))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[DomainResponse](t, rr)
		assert.True(t, resp.IsRegistered)
		assert.False(t, resp.ClearStatus)
		assert.Equal(t, 1, inv.calls)
	})

	t.Run("both fields are required", func(t *testing.T) {
		rr := testutil.DoRequest(router, adminRequest(t, http.MethodPut, path, map[string]bool{"is_registered": true}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("unknown domain", func(t *testing.T) {
		rr := testutil.DoRequest(router, adminRequest(t, http.MethodPut,
			"/domains/7b0d1c52-6f4f-4f7e-9a55-3d2a7f1f0c11/snapshot",
			map[string]bool{"is_registered": true, "clear_status": true}))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestListings(t *testing.T) {
	router, _ := newRouter(t)
	for _, fqdn := range []string{"b.net", "a.com"} {
		rr := testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/domains", map[string]string{"fqdn": fqdn}))
		testutil.AssertStatus(t, rr, http.StatusCreated)
	}

	t.Run("domains", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/domains"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[DomainListResponse](t, rr)
		assert.Len(t, resp.Domains, 2)
	})

	t.Run("flags", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/flags"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[FlagListResponse](t, rr)
		assert.Len(t, resp.Flags, 3)
	})

	t.Run("malformed id", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/domains/not-a-uuid"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}
