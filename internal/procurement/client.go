// Package procurement предоставляет клиент для внешней системы закупок:
// позиции заказов, история счетов, внутренние заказы и мастер-данные пользователей.
package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSourceUnavailable возвращается, если система закупок недоступна или ответила неожиданным статусом.
var (
	ErrSourceUnavailable = errors.New("procurement source unavailable")
	// ErrNotFound возвращается, если запрошенная сущность отсутствует в системе закупок.
	ErrNotFound = errors.New("procurement entity not found")
)

// maxKeysPerRequest ограничивает число ключей в одном пакетном запросе.
const maxKeysPerRequest = 50

// Client инкапсулирует HTTP-взаимодействие с системой закупок.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для обращения к системе закупок по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("%w: client not configured", ErrSourceUnavailable)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do request: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d for %s", ErrSourceUnavailable, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}

	return nil
}

// FetchItemsByRequester возвращает позиции заказов указанного заявителя вместе с заголовком и учётом затрат.
func (c *Client) FetchItemsByRequester(ctx context.Context, requester string) ([]PurchaseOrderItem, error) {
	var res []PurchaseOrderItem
	q := url.Values{"requisitioner": {requester}}
	if err := c.getJSON(ctx, "/api/purchase-order-items", q, &res); err != nil {
		return nil, fmt.Errorf("fetch items of %s: %w", requester, err)
	}
	return res, nil
}

// FetchItem возвращает одну позицию заказа.
func (c *Client) FetchItem(ctx context.Context, purchaseOrder, purchaseOrderItem string) (*PurchaseOrderItem, error) {
	var res PurchaseOrderItem
	path := "/api/purchase-order-items/" + url.PathEscape(purchaseOrder) + "/" + url.PathEscape(purchaseOrderItem)
	if err := c.getJSON(ctx, path, nil, &res); err != nil {
		return nil, fmt.Errorf("fetch item %s/%s: %w", purchaseOrder, purchaseOrderItem, err)
	}
	return &res, nil
}

// FetchInvoiceHistory возвращает записи истории заказов указанной категории для набора позиций.
// Ключи объединяются через OR пачками по maxKeysPerRequest.
func (c *Client) FetchInvoiceHistory(ctx context.Context, keys []HistoryKey, category string) ([]HistoryRecord, error) {
	var res []HistoryRecord
	for start := 0; start < len(keys); start += maxKeysPerRequest {
		end := min(start+maxKeysPerRequest, len(keys))

		q := url.Values{"category": {category}}
		for _, k := range keys[start:end] {
			q.Add("key", k.PurchaseOrder+"-"+k.PurchaseOrderItem)
		}

		var chunk []HistoryRecord
		if err := c.getJSON(ctx, "/api/purchase-order-history", q, &chunk); err != nil {
			return nil, fmt.Errorf("fetch invoice history: %w", err)
		}
		res = append(res, chunk...)
	}
	return res, nil
}

// FetchInternalOrders возвращает внутренние заказы по их идентификаторам.
func (c *Client) FetchInternalOrders(ctx context.Context, ids []string) ([]InternalOrder, error) {
	var res []InternalOrder
	for start := 0; start < len(ids); start += maxKeysPerRequest {
		end := min(start+maxKeysPerRequest, len(ids))

		q := url.Values{}
		for _, id := range ids[start:end] {
			q.Add("id", strings.ToLower(id))
		}

		var chunk []InternalOrder
		if err := c.getJSON(ctx, "/api/internal-orders", q, &chunk); err != nil {
			return nil, fmt.Errorf("fetch internal orders: %w", err)
		}
		res = append(res, chunk...)
	}
	return res, nil
}

// FetchUserMasterData возвращает кадровые мастер-данные по e-mail пользователя.
func (c *Client) FetchUserMasterData(ctx context.Context, email string) (*UserMasterData, error) {
	var res []UserMasterData
	q := url.Values{"email": {strings.ToLower(email)}}
	if err := c.getJSON(ctx, "/api/hr-master", q, &res); err != nil {
		return nil, fmt.Errorf("fetch master data: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return &res[0], nil
}

// FetchCostCenters возвращает МВЗ, за которые отвечает пользователь на указанную дату.
func (c *Client) FetchCostCenters(ctx context.Context, responsibleUser string, date time.Time) ([]CostCenter, error) {
	var res []CostCenter
	q := url.Values{
		"responsible": {responsibleUser},
		"date":        {date.Format(time.DateOnly)},
	}
	if err := c.getJSON(ctx, "/api/cost-centers", q, &res); err != nil {
		return nil, fmt.Errorf("fetch cost centers: %w", err)
	}
	return res, nil
}
