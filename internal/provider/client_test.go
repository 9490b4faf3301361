package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) AccessToken(ctx context.Context, ref StoreRef) (string, error) {
	return string(s), nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, staticTokens("tok-test"), 5*time.Second)
}

func TestPollEventsSendsMerchantHeader(t *testing.T) {
	var gotHeader, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-polling-merchants")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]Event{
			{ID: "evt-1", OrderID: "ord-1", Code: "PLC"},
		})
	})

	events, err := client.PollEvents(context.Background(), StoreRef{TenantID: 1, StoreID: 2}, []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "m1,m2", gotHeader)
	require.Equal(t, "Bearer tok-test", gotAuth)
}

func TestPollEventsNoContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	events, err := client.PollEvents(context.Background(), StoreRef{}, []string{"m1"})
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestAcknowledgeEventsBody(t *testing.T) {
	var body []map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.AcknowledgeEvents(context.Background(), StoreRef{}, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []map[string]string{{"id": "a"}, {"id": "b"}}, body)
}

func TestGetOrderRetainsRaw(t *testing.T) {
	payload := `{"id":"ord-1","displayId":"1234","fullCode":"CONFIRMED","total":{"price":59.9,"deliveryFee":8},"items":[{"externalCode":"PIZZA-1","name":"Pizza Grande","quantity":1,"unitPrice":51.9,"options":[{"name":"Borda","qty":1}]}]}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	})

	detail, err := client.GetOrder(context.Background(), StoreRef{}, "ord-1")
	require.NoError(t, err)
	require.Equal(t, "CONFIRMED", detail.FullCode)
	require.JSONEq(t, payload, string(detail.Raw))
	require.Len(t, detail.Items, 1)
	require.Len(t, detail.Items[0].Options, 1)
	require.Equal(t, 1.0, detail.Items[0].Options[0].Quantity)
}

func TestItemOptionLegacyQtyKey(t *testing.T) {
	var opt ItemOption
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Catupiry","qty":2}`), &opt))
	require.Equal(t, 2.0, opt.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"name":"Cheddar","quantity":3}`), &opt))
	require.Equal(t, 3.0, opt.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"name":"Bacon"}`), &opt))
	require.Equal(t, 1.0, opt.Quantity)
}

func TestSales404MeansEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no sales", http.StatusNotFound)
	})

	sales, err := client.Sales(context.Background(), StoreRef{}, "m1", time.Now().AddDate(0, 0, -1), time.Now(), 1, 100)
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestSalesAuthError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	})

	_, err := client.Sales(context.Background(), StoreRef{}, "m1", time.Now().AddDate(0, 0, -1), time.Now(), 1, 100)
	require.ErrorIs(t, err, ErrAuth)
}

func TestFinancialEventsPaging(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "100", r.URL.Query().Get("size"))
		require.NotEmpty(t, r.URL.Query().Get("beginDate"))
		_ = json.NewEncoder(w).Encode(FinancialEventsPage{
			FinancialEvents: []FinancialEvent{{ID: "fe-1", Amount: 10}},
			HasNextPage:     true,
		})
	})

	page, err := client.FinancialEvents(context.Background(), StoreRef{}, "m1", time.Now().AddDate(0, 0, -2), time.Now(), 2, 100)
	require.NoError(t, err)
	require.True(t, page.HasNextPage)
	require.Len(t, page.FinancialEvents, 1)
}

func TestGetMerchantMissingIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	merchant, err := client.GetMerchant(context.Background(), StoreRef{}, "m1")
	require.NoError(t, err)
	require.Nil(t, merchant)
}

func TestOrderStatusPriority(t *testing.T) {
	detail := &OrderDetail{FullCode: "CONCLUDED", Code: "CON"}
	require.Equal(t, "CONCLUDED", detail.Status("EVT"))

	detail = &OrderDetail{Code: "CON"}
	require.Equal(t, "CON", detail.Status("EVT"))

	detail = &OrderDetail{}
	require.Equal(t, "EVT", detail.Status("EVT"))
}

func TestPOSClientLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] != "s3cret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "pos-token"})
	}))
	t.Cleanup(srv.Close)

	client := NewPOSClient(srv.URL, 5*time.Second)
	token, err := client.Login(context.Background(), "loja@example.com", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "pos-token", token)

	_, err = client.Login(context.Background(), "loja@example.com", "wrong")
	require.ErrorIs(t, err, ErrAuth)
}
