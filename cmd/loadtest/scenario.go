package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/httpapi"
)

// saleClient вызывает HTTP API кассы и пишет каждый вызов в collector.
type saleClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

type apiError struct {
	method string
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.method, e.status, e.body)
}

func (c *saleClient) createSale(productID string, quantity int, key string) (domain.Sale, error) {
	body := map[string]any{
		"items": []domain.CartItem{{ProductID: productID, Quantity: quantity}},
	}
	var sale domain.Sale
	err := c.call("CreateSale", http.MethodPost, "/api/v1/sales", key, body, http.StatusCreated, &sale)
	if err == nil && sale.ID == "" {
		err = errors.New("create sale returned empty sale id")
	}
	return sale, err
}

func (c *saleClient) updateStatus(saleID string, status domain.SaleStatus) error {
	method := "Status" + string(status)
	path := "/api/v1/sales/" + saleID + "/status"
	return c.call(method, http.MethodPatch, path, "", map[string]string{"status": string(status)}, http.StatusOK, nil)
}

func (c *saleClient) call(method, verb, path, key string, in any, want int, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, verb, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(httpapi.HeaderIdempotencyKey, key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(method, time.Since(start), 0, false)
		return err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	c.col.record(method, time.Since(start), resp.StatusCode, resp.StatusCode == want && readErr == nil)
	if readErr != nil {
		return fmt.Errorf("read %s response: %w", method, readErr)
	}
	if resp.StatusCode != want {
		return &apiError{method: method, status: resp.StatusCode, body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
	}
	return nil
}

// runScenario проводит одну продажу по выбранному режиму.
func runScenario(client *saleClient, cfg config, index int, runID string) (err error) {
	start := time.Now()
	defer func() {
		status := http.StatusOK
		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.status
		case err != nil:
			status = 0
		}
		client.col.record(scenarioMethod, time.Since(start), status, err == nil)
	}()

	sale, err := client.createSale(cfg.productID, cfg.quantity, fmt.Sprintf("lt-sale-%s-%d", runID, index))
	if err != nil {
		return err
	}

	switch {
	case cfg.mode == modeSale:
		return nil
	case cfg.mode == modeSaleCancel || shouldCancelScenario(index, cfg.cancelRate):
		return client.updateStatus(sale.ID, domain.SaleStatusCancelled)
	}

	for _, next := range []domain.SaleStatus{domain.SaleStatusPreparing, domain.SaleStatusReady, domain.SaleStatusCompleted} {
		if err := client.updateStatus(sale.ID, next); err != nil {
			return err
		}
	}
	return nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
