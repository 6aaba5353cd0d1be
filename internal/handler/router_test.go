package handler

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/fcoaccruals/internal/middleware"
	"github.com/mmeshcher/fcoaccruals/internal/model"
)

func doEncodedRequest(t *testing.T, svc Service, method, target string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	h, identity := newTestHandler(t, svc)

	req := httptest.NewRequest(method, target, body)
	req.Header.Set(middleware.IdentityHeader, identity.Sign(allRoles))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func TestRouter_GzippedSumRequest(t *testing.T) {
	order := sampleOrder()
	svc := &stubService{sumResp: &order}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"purchaseOrder":"4500000001","purchaseOrderItem":"10","openTotalAmountEditable":"149.99"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res := doEncodedRequest(t, svc, http.MethodPost, "/api/actions/sum", &buf, map[string]string{
		"Content-Type":     "application/json",
		"Content-Encoding": "gzip",
		"Accept-Encoding":  "gzip",
	})
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, svc.sumAmount.Equal(decimal.RequireFromString("149.99")))
	require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(res.Body)
	require.NoError(t, err)
	defer zr.Close()

	var body orderResponse
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assert.Equal(t, "4500000001", body.PurchaseOrder)
	assert.Equal(t, "149.990", body.OpenTotalAmountEditable)
}

func TestRouter_PlainResponseWithoutAcceptEncoding(t *testing.T) {
	svc := &stubService{ordersResp: []model.Order{sampleOrder()}}

	res := doEncodedRequest(t, svc, http.MethodGet, "/api/orders", nil, nil)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get("Content-Encoding"))

	var body []orderResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Len(t, body, 1)
}

func TestRouter_NoContentIsNotCompressed(t *testing.T) {
	res := doEncodedRequest(t, &stubService{}, http.MethodGet, "/api/orders", nil, map[string]string{
		"Accept-Encoding": "gzip",
	})
	defer res.Body.Close()

	require.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Empty(t, res.Header.Get("Content-Encoding"))

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Empty(t, b)
}
