package shopify

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
)

type adminCall struct {
	Method string
	Path   string
	Token  string
	Body   []byte
}

type fakeAdmin struct {
	mu      sync.Mutex
	calls   []adminCall
	respond func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, adminCall{Method: r.Method, Path: r.URL.Path, Token: r.Header.Get(accessTokenHeader), Body: body})
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.respond(w, r)
}

func (f *fakeAdmin) recorded() []adminCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adminCall(nil), f.calls...)
}

func newTestClient(t *testing.T, token string, respond func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeAdmin) {
	t.Helper()

	fake := &fakeAdmin{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(Config{
		AccessToken: token,
		Endpoint:    srv.URL,
		HTTPClient:  srv.Client(),
	}, logger, nil)
	return client, fake
}

func mirroredOrder() domain.Order {
	return domain.Order{
		ID:       "1001",
		Shop:     domain.Shop{Domain: "barefoot-9610.myshopify.com"},
		Customer: domain.Customer{FullName: "Old Name", Email: "ivan@example.com", Phone: "+380000000000"},
		Cart: domain.Cart{Items: []domain.CartItem{
			{VariantID: "4455", Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(155000)},
			{VariantID: "", Quantity: decimal.NewFromInt(1)},
			{VariantID: "7788", Quantity: decimal.RequireFromString("1.5")},
		}},
		DeliveryAddress: &domain.Address{
			FullName:        "Іван Петренко",
			Phone:           "+380501234567",
			Region:          "Київська",
			City:            "Київ",
			WarehouseNumber: "12",
			FullAddress:     "Київська, Київ, вул. Хрещатик 1",
		},
	}
}

func TestBuildLineItems(t *testing.T) {
	lines, skipped := buildLineItems(mirroredOrder().Cart.Items)

	require.Equal(t, []lineItem{{VariantID: "4455", Quantity: 2, Price: "1550.00"}}, lines)
	require.Len(t, skipped, 2)
	require.Equal(t, 1, skipped[0].Index)
	require.Equal(t, 2, skipped[1].Index)
}

func TestBuildOrder(t *testing.T) {
	order := mirroredOrder()
	lines, _ := buildLineItems(order.Cart.Items)

	req := buildOrder(order, lines)

	require.Equal(t, "UAH", req.Currency)
	require.Equal(t, "pending", req.FinancialStatus)
	require.Equal(t, "crm-integration", req.Tags)
	require.Nil(t, req.FulfillmentStatus)
	require.Equal(t, "Order created via CRM integration. Delivery: Київська, Київ, вул. Хрещатик 1", req.Note)
	require.Equal(t, customer{FirstName: "Іван", LastName: "Петренко", Email: "ivan@example.com", Phone: "+380501234567"}, req.Customer)
	require.NotNil(t, req.ShippingAddress)
	require.Equal(t, "вул. Хрещатик 1", req.ShippingAddress.Address1)
	require.Equal(t, "UA", req.ShippingAddress.Country)
	require.Equal(t, *req.ShippingAddress, req.BillingAddress)
}

func TestBuildOrderWithoutAddress(t *testing.T) {
	order := mirroredOrder()
	order.DeliveryAddress = nil
	order.Cart.Currency = "EUR"

	req := buildOrder(order, nil)

	require.Nil(t, req.ShippingAddress)
	require.Equal(t, "Old", req.BillingAddress.FirstName)
	require.Equal(t, "Name", req.BillingAddress.LastName)
	require.Equal(t, "EUR", req.Currency)
	require.Contains(t, req.Note, "Delivery: N/A")
}

func TestStreetLine(t *testing.T) {
	tests := []struct {
		name    string
		address domain.Address
		want    string
	}{
		{
			name:    "warehouse address wins",
			address: domain.Address{WarehouseAddress: "вул. Січових Стрільців, 7", FullAddress: "x"},
			want:    "вул. Січових Стрільців, 7",
		},
		{
			name:    "full address without region and city",
			address: domain.Address{Region: "Львівська", City: "Львів", FullAddress: "Львівська, Львів, Відділення №3"},
			want:    "Відділення №3",
		},
		{
			name:    "generic pickup point",
			address: domain.Address{Region: "Львівська", City: "Львів", FullAddress: "Львівська, Львів", WarehouseNumber: "3"},
			want:    "Відділення Нової Пошти №3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, streetLine(tt.address))
		})
	}
}

func TestCreateOrder(t *testing.T) {
	client, fake := newTestClient(t, "shpat_test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"order":{"id":450789469,"name":"#1001","order_number":1001}}`)
	})

	created, err := client.CreateOrder(t.Context(), mirroredOrder())

	require.NoError(t, err)
	require.Equal(t, int64(450789469), created.ID)
	require.Equal(t, "#1001", created.Name)

	calls := fake.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, http.MethodPost, calls[0].Method)
	require.Equal(t, "/admin/api/2024-01/orders.json", calls[0].Path)
	require.Equal(t, "shpat_test", calls[0].Token)

	var sent struct {
		Order struct {
			LineItems []map[string]any `json:"line_items"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	require.Len(t, sent.Order.LineItems, 1)
	require.Equal(t, "4455", sent.Order.LineItems[0]["variant_id"])
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		mutate  func(*domain.Order)
		wantErr error
	}{
		{name: "missing token", token: "", mutate: func(*domain.Order) {}, wantErr: ErrMissingAccessToken},
		{name: "missing shop", token: "t", mutate: func(o *domain.Order) { o.Shop.Domain = "" }, wantErr: ErrMissingShopDomain},
		{name: "empty cart", token: "t", mutate: func(o *domain.Order) { o.Cart.Items = nil }, wantErr: ErrNoLineItems},
		{
			name:  "no valid items",
			token: "t",
			mutate: func(o *domain.Order) {
				o.Cart.Items = []domain.CartItem{{VariantID: "1", Quantity: decimal.Zero}}
			},
			wantErr: ErrNoLineItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newTestClient(t, tt.token, func(http.ResponseWriter, *http.Request) {})
			order := mirroredOrder()
			tt.mutate(&order)

			_, err := client.CreateOrder(t.Context(), order)

			require.ErrorIs(t, err, tt.wantErr)
			require.Empty(t, fake.recorded())
		})
	}
}

func TestCreateOrderAPIError(t *testing.T) {
	client, _ := newTestClient(t, "t", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"errors":{"line_items":["is invalid"]}}`)
	})

	_, err := client.CreateOrder(t.Context(), mirroredOrder())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.JSONEq(t, `{"line_items":["is invalid"]}`, string(apiErr.Errors))
	require.Contains(t, err.Error(), "failed to create order")
}

func TestCloseOrder(t *testing.T) {
	t.Run("marks paid then closes", func(t *testing.T) {
		client, fake := newTestClient(t, "t", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"order":{"id":42,"closed_at":"2026-01-01T00:00:00Z"}}`)
		})

		closed, err := client.CloseOrder(t.Context(), "shop.myshopify.com", 42, true)

		require.NoError(t, err)
		require.Equal(t, "2026-01-01T00:00:00Z", closed.ClosedAt)

		calls := fake.recorded()
		require.Len(t, calls, 2)
		require.Equal(t, http.MethodPut, calls[0].Method)
		require.Equal(t, "/admin/api/2024-01/orders/42.json", calls[0].Path)
		require.JSONEq(t, `{"order":{"id":42,"financial_status":"paid"}}`, string(calls[0].Body))
		require.Equal(t, http.MethodPost, calls[1].Method)
		require.Equal(t, "/admin/api/2024-01/orders/42/close.json", calls[1].Path)
	})

	t.Run("paid update failure does not stop closing", func(t *testing.T) {
		client, fake := newTestClient(t, "t", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, `{"errors":"forbidden"}`)
				return
			}
			_, _ = io.WriteString(w, `{"order":{"id":42}}`)
		})

		_, err := client.CloseOrder(t.Context(), "shop", 42, true)

		require.NoError(t, err)
		require.Len(t, fake.recorded(), 2)
	})

	t.Run("without marking paid", func(t *testing.T) {
		client, fake := newTestClient(t, "t", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"order":{"id":42}}`)
		})

		_, err := client.CloseOrder(t.Context(), "shop", 42, false)

		require.NoError(t, err)
		calls := fake.recorded()
		require.Len(t, calls, 1)
		require.Equal(t, "/admin/api/2024-01/orders/42/close.json", calls[0].Path)
	})

	t.Run("missing identifiers", func(t *testing.T) {
		client, _ := newTestClient(t, "t", func(http.ResponseWriter, *http.Request) {})

		_, err := client.CloseOrder(t.Context(), "", 42, true)

		require.ErrorIs(t, err, ErrMissingOrderID)
	})
}

func TestAPIURL(t *testing.T) {
	client := NewClient(Config{AccessToken: "t", APIVersion: "2025-01"}, nil, nil)

	require.Equal(t, "https://barefoot.myshopify.com/admin/api/2025-01", client.apiURL("barefoot.myshopify.com"))
	require.Equal(t, "https://barefoot.myshopify.com/admin/api/2025-01", client.apiURL("barefoot"))
}

func TestMirror(t *testing.T) {
	t.Run("creates and closes", func(t *testing.T) {
		client, fake := newTestClient(t, "t", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"order":{"id":7}}`)
		})

		err := NewMirror(client, nil).Mirror(t.Context(), mirroredOrder())

		require.NoError(t, err)
		calls := fake.recorded()
		require.Len(t, calls, 3)
		require.Equal(t, "/admin/api/2024-01/orders.json", calls[0].Path)
		require.Equal(t, "/admin/api/2024-01/orders/7.json", calls[1].Path)
		require.Equal(t, "/admin/api/2024-01/orders/7/close.json", calls[2].Path)
	})

	t.Run("create failure skips closing", func(t *testing.T) {
		client, fake := newTestClient(t, "t", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		err := NewMirror(client, nil).Mirror(t.Context(), mirroredOrder())

		require.Error(t, err)
		require.Len(t, fake.recorded(), 1)
	})
}
