package novaposhta

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Props  map[string]any
	APIKey string
	Model  string
}

type callLog struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (l *callLog) add(c recordedCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) all() []recordedCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedCall(nil), l.calls...)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, call recordedCall)) (*Client, *callLog) {
	t.Helper()

	calls := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		call := recordedCall{Method: req.CalledMethod, Props: req.MethodProperties, APIKey: req.APIKey, Model: req.ModelName}
		calls.add(call)
		handler(w, call)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(Config{APIURL: srv.URL, APIKey: "secret", HTTPClient: srv.Client()}, logger, nil)
	return client, calls
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestFindCities(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ recordedCall) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[{"Ref":"c1","Description":"Київ","AreaDescription":"Київська"}],"errors":[],"warnings":[]}`)
	})

	cities, err := client.FindCities(t.Context(), "Київ", "area-1", 50)
	require.NoError(t, err)
	require.Equal(t, []City{{Ref: "c1", Description: "Київ", AreaDescription: "Київська"}}, cities)

	require.Len(t, calls.all(), 1)
	call := calls.all()[0]
	require.Equal(t, "getCities", call.Method)
	require.Equal(t, "secret", call.APIKey)
	require.Equal(t, "Address", call.Model)
	require.Equal(t, "Київ", call.Props["FindByString"])
	require.Equal(t, "area-1", call.Props["AreaRef"])
	require.EqualValues(t, 50, call.Props["Limit"])
}

func TestFindCitiesOmitsEmptyAreaRef(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ recordedCall) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[]}`)
	})

	cities, err := client.FindCities(t.Context(), "Львів", "", 5)
	require.NoError(t, err)
	require.Empty(t, cities)
	require.NotContains(t, calls.all()[0].Props, "AreaRef")
}

func TestWarehousesQueryShape(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ recordedCall) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[{"Number":"1","Description":"Відділення №1","ShortAddress":"Київ, вул. Хрещатик, 1"}]}`)
	})

	_, err := client.Warehouses(t.Context(), WarehouseQuery{CityRef: "ref-1", CityName: "Київ"})
	require.NoError(t, err)
	_, err = client.Warehouses(t.Context(), WarehouseQuery{CityName: "Київ"})
	require.NoError(t, err)

	recorded := calls.all()
	require.Len(t, recorded, 2)
	require.Equal(t, "ref-1", recorded[0].Props["CityRef"])
	require.NotContains(t, recorded[0].Props, "CityName")
	require.EqualValues(t, 500, recorded[0].Props["Limit"])
	require.Equal(t, "Київ", recorded[1].Props["CityName"])
	require.NotContains(t, recorded[1].Props, "CityRef")
}

func TestWarehousesRejectsNonJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ recordedCall) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	})

	_, err := client.Warehouses(t.Context(), WarehouseQuery{CityName: "Київ"})
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantMessage   string
		wantRateLimit bool
	}{
		{
			name:          "rate limit message",
			status:        http.StatusOK,
			body:          `{"success":false,"data":[],"errors":["To many requests"]}`,
			wantMessage:   "To many requests",
			wantRateLimit: true,
		},
		{
			name:          "http 429",
			status:        http.StatusTooManyRequests,
			body:          `{"success":false,"errors":[]}`,
			wantRateLimit: true,
		},
		{
			name:        "errors as object",
			status:      http.StatusOK,
			body:        `{"success":false,"errors":{"20000200068":"API key expired"}}`,
			wantMessage: "API key expired",
		},
		{
			name:   "server error without json",
			status: http.StatusBadGateway,
			body:   `bad gateway`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ recordedCall) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.FindCities(t.Context(), "Київ", "", 50)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "want *APIError, got %T", err)
			if tt.wantMessage != "" {
				require.Equal(t, tt.wantMessage, err.Error())
			}
			require.Equal(t, tt.wantRateLimit, errors.Is(err, ErrRateLimited))
		})
	}
}

func TestUnsuccessfulWithoutErrorsIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ recordedCall) {
		writeJSON(w, http.StatusOK, `{"success":false,"data":[],"errors":[]}`)
	})

	areas, err := client.Areas(t.Context())
	require.NoError(t, err)
	require.Empty(t, areas)
}
