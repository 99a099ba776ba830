//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/voltcart-checkout/internal/domain/order"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkout",
				"POSTGRES_PASSWORD": "checkout",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://checkout:checkout@%s:%s/checkout?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, dsn, PoolConfig{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Schema must be re-appliable on every start.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func newOrder(userID string) *order.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	o := &order.Order{
		ID:            id,
		OrderNumber:   "VC2025031400042",
		UserID:        userID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentMethod: order.PaymentMethodRazorpay,
		Subtotal:      decimal.RequireFromString("820"),
		Shipping:      decimal.Zero,
		Tax:           decimal.RequireFromString("180"),
		Total:         decimal.RequireFromString("1000"),
		ShippingAddress: order.ShippingAddress{
			Name:         "Asha Rao",
			Phone:        "9876543210",
			AddressLine1: "12 Marine Drive",
			City:         "Mumbai",
			State:        "Maharashtra",
			Pincode:      "400002",
			Country:      order.DefaultCountry,
		},
		RazorpayOrderID: "order_" + id[:8],
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.Items = []order.Item{
		{
			ID: uuid.NewString(), OrderID: id, ProductID: "p1", ProductName: "Earbuds",
			Quantity: 2, UnitPrice: decimal.RequireFromString("300"), TotalPrice: decimal.RequireFromString("600"),
			SelectedColor: "Black", CreatedAt: now,
		},
		{
			ID: uuid.NewString(), OrderID: id, ProductID: "p2", ProductName: "Cable",
			ProductImage: "cable.jpg", Quantity: 1, UnitPrice: decimal.RequireFromString("220"),
			TotalPrice: decimal.RequireFromString("220"), CreatedAt: now,
		},
	}
	return o
}

func TestOrderRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		o := newOrder("user-1")
		require.NoError(t, repo.InTx(ctx, func(tx order.Repository) error {
			if err := tx.Create(ctx, o); err != nil {
				return err
			}
			return tx.CreateItems(ctx, o.ID, o.Items)
		}))

		got, err := repo.GetForUser(ctx, o.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, o.OrderNumber, got.OrderNumber)
		assert.Equal(t, order.StatusPending, got.Status)
		assert.True(t, o.Total.Equal(got.Total))
		assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
		assert.Empty(t, got.RazorpayPaymentID)

		items, err := repo.ListItems(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "Earbuds", items[0].ProductName)
		assert.Equal(t, "Black", items[0].SelectedColor)
		assert.Equal(t, "cable.jpg", items[1].ProductImage)
		assert.Empty(t, items[1].SelectedColor)
		assert.True(t, decimal.RequireFromString("600").Equal(items[0].TotalPrice))
	})

	t.Run("foreign owner is not found", func(t *testing.T) {
		o := newOrder("user-1")
		require.NoError(t, repo.Create(ctx, o))

		_, err := repo.GetForUser(ctx, o.ID, "user-2")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("transaction rolls back", func(t *testing.T) {
		o := newOrder("user-1")
		o.Items[1].Quantity = 0 // violates CHECK (quantity >= 1)

		err := repo.InTx(ctx, func(tx order.Repository) error {
			if err := tx.Create(ctx, o); err != nil {
				return err
			}
			return tx.CreateItems(ctx, o.ID, o.Items)
		})
		require.Error(t, err)

		_, err = repo.GetForUser(ctx, o.ID, "user-1")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("delete cascades", func(t *testing.T) {
		o := newOrder("user-1")
		require.NoError(t, repo.Create(ctx, o))
		require.NoError(t, repo.CreateItems(ctx, o.ID, o.Items))
		require.NoError(t, repo.Delete(ctx, o.ID))

		items, err := repo.ListItems(ctx, o.ID)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("mark paid only once", func(t *testing.T) {
		o := newOrder("user-1")
		require.NoError(t, repo.Create(ctx, o))

		paid, err := repo.MarkPaid(ctx, o.ID, "pay_1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, paid.Status)
		assert.Equal(t, order.PaymentCompleted, paid.PaymentStatus)
		assert.Equal(t, "pay_1", paid.RazorpayPaymentID)
		assert.False(t, paid.UpdatedAt.Before(paid.CreatedAt))

		_, err = repo.MarkPaid(ctx, o.ID, "pay_2")
		require.ErrorIs(t, err, order.ErrNotPending)
		require.ErrorIs(t, repo.MarkFailed(ctx, o.ID), order.ErrNotPending)

		got, err := repo.GetForUser(ctx, o.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "pay_1", got.RazorpayPaymentID)
	})

	t.Run("mark failed", func(t *testing.T) {
		o := newOrder("user-1")
		require.NoError(t, repo.Create(ctx, o))
		require.NoError(t, repo.MarkFailed(ctx, o.ID))

		got, err := repo.GetForUser(ctx, o.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, got.Status)
		assert.Equal(t, order.PaymentFailed, got.PaymentStatus)

		_, err = repo.MarkPaid(ctx, o.ID, "pay_1")
		require.ErrorIs(t, err, order.ErrNotPending)
	})

	t.Run("concurrent mark paid has one winner", func(t *testing.T) {
		o := newOrder("user-1")
		require.NoError(t, repo.Create(ctx, o))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.MarkPaid(ctx, o.ID, fmt.Sprintf("pay_%d", i)); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("list newest first", func(t *testing.T) {
		user := "lister-" + uuid.NewString()
		base := time.Now().UTC().Truncate(time.Microsecond)
		for i := range 3 {
			o := newOrder(user)
			o.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			o.OrderNumber = fmt.Sprintf("VC20250314%05d", i)
			require.NoError(t, repo.Create(ctx, o))
		}

		orders, err := repo.ListForUser(ctx, user, 2)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "VC2025031400002", orders[0].OrderNumber)
		assert.Equal(t, "VC2025031400001", orders[1].OrderNumber)
	})
}
