package service

import (
	"context"
	"testing"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateSettings(context.Context) error {
	f.calls++
	return nil
}

func newCatalogFixture(t *testing.T) (*CatalogService, *fakeStore, *fakeInvalidator) {
	t.Helper()
	fs := newFakeStore()
	fs.addUser("admin-1", "admin@example.com", models.RoleAdmin)
	fs.addUser("customer-1", "customer@example.com", models.RoleCustomer)
	inv := &fakeInvalidator{}
	gate := auth.NewGate(nil, fs)
	return NewCatalogService(fs, inv, gate), fs, inv
}

func TestListProductsHidesInactiveFromCustomers(t *testing.T) {
	svc, fs, _ := newCatalogFixture(t)
	fs.addProduct(models.Product{ID: "p1", Name: "Towel", Price: 100, Active: true})
	fs.addProduct(models.Product{ID: "p2", Name: "Retired", Price: 100, Active: false})

	anon, err := svc.ListProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, anon, 1)

	mine, err := svc.ListProducts(context.Background(), customerIdentity())
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := svc.ListProducts(context.Background(), adminIdentity())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateProduct(t *testing.T) {
	svc, fs, _ := newCatalogFixture(t)

	p, err := svc.CreateProduct(context.Background(), adminIdentity(), &ProductRequest{
		Name:     "Handloom Towel",
		Price:    250,
		Stock:    10,
		Category: "textiles",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Active)

	stored, err := fs.GetProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Stock)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, _ := newCatalogFixture(t)

	_, err := svc.CreateProduct(context.Background(), nil, &ProductRequest{Name: "x", Price: 1})
	assert.Equal(t, apperr.Unauthenticated, apperr.CodeOf(err))

	_, err = svc.CreateProduct(context.Background(), customerIdentity(), &ProductRequest{Name: "x", Price: 1})
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))

	_, err = svc.CreateProduct(context.Background(), adminIdentity(), &ProductRequest{Price: 1})
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))

	_, err = svc.CreateProduct(context.Background(), adminIdentity(), &ProductRequest{Name: "x", Price: 0})
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))

	_, err = svc.CreateProduct(context.Background(), adminIdentity(), &ProductRequest{Name: "x", Price: 1, Stock: -1})
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))
}

func TestUpdateProductDoesNotTouchStock(t *testing.T) {
	svc, fs, _ := newCatalogFixture(t)
	fs.addProduct(models.Product{ID: "p1", Name: "Towel", Price: 100, Stock: 7, Active: true})

	p, err := svc.UpdateProduct(context.Background(), adminIdentity(), "p1", &ProductRequest{
		Name:  "Towel Deluxe",
		Price: 150,
		Stock: 999, // must be ignored
	})
	require.NoError(t, err)
	assert.Equal(t, "Towel Deluxe", p.Name)
	assert.Equal(t, int64(150), p.Price)

	stored, err := fs.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Stock)
}

func TestUpdateProductNotFound(t *testing.T) {
	svc, _, _ := newCatalogFixture(t)

	_, err := svc.UpdateProduct(context.Background(), adminIdentity(), "ghost", &ProductRequest{Name: "x", Price: 1})
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestDeleteProductSoftDeletes(t *testing.T) {
	svc, fs, _ := newCatalogFixture(t)
	fs.addProduct(models.Product{ID: "p1", Name: "Towel", Price: 100, Active: true})

	require.NoError(t, svc.DeleteProduct(context.Background(), adminIdentity(), "p1"))

	stored, err := fs.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, stored.Active)

	err = svc.DeleteProduct(context.Background(), adminIdentity(), "ghost")
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestUpdateSettingsInvalidatesCache(t *testing.T) {
	svc, fs, inv := newCatalogFixture(t)

	err := svc.UpdateSettings(context.Background(), adminIdentity(), &models.Settings{
		UPIID:    "new@upi",
		BankName: "New Bank",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)

	stored, err := fs.GetSettings(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "new@upi", stored.UPIID)

	err = svc.UpdateSettings(context.Background(), customerIdentity(), &models.Settings{})
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))
	assert.Equal(t, 1, inv.calls)
}
