package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"leasecore/native/lease"
)

const defaultTimeout = 10 * time.Second

// httpClient is the shared REST plumbing for the collaborator clients.
type httpClient struct {
	base string
	http *http.Client
}

func newHTTPClient(base string) httpClient {
	return httpClient{base: base, http: &http.Client{Timeout: defaultTimeout}}
}

func (c httpClient) post(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s%s: unexpected status %d", c.base, path, resp.StatusCode)
	}
	return nil
}

func (c httpClient) get(path string, dst any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s%s: unexpected status %d", c.base, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// Pool talks to the liquidity pool service.
type Pool struct{ httpClient }

func NewPool(base string) *Pool { return &Pool{newHTTPClient(base)} }

func (p *Pool) RequestLoan(requestID string, amount *big.Int) error {
	return p.post("/v1/loans", map[string]string{
		"request_id": requestID,
		"amount":     amount.String(),
	})
}

func (p *Pool) CancelLoan(requestID string) error {
	return p.post(fmt.Sprintf("/v1/loans/%s/cancel", requestID), struct{}{})
}

func (p *Pool) Balances() (*big.Int, *big.Int, error) {
	var payload struct {
		TotalLiability string `json:"total_liability"`
		Balance        string `json:"balance"`
	}
	if err := p.get("/v1/balances", &payload); err != nil {
		return nil, nil, err
	}
	liability, ok := new(big.Int).SetString(payload.TotalLiability, 10)
	if !ok {
		return nil, nil, fmt.Errorf("pool: invalid liability %q", payload.TotalLiability)
	}
	balance, ok := new(big.Int).SetString(payload.Balance, 10)
	if !ok {
		return nil, nil, fmt.Errorf("pool: invalid balance %q", payload.Balance)
	}
	return liability, balance, nil
}

// Custody opens remote accounts.
type Custody struct{ httpClient }

func NewCustody(base string) *Custody { return &Custody{newHTTPClient(base)} }

func (c *Custody) OpenAccount(requestID string) error {
	return c.post("/v1/accounts", map[string]string{"request_id": requestID})
}

// Transfer moves funds to remote accounts.
type Transfer struct{ httpClient }

func NewTransfer(base string) *Transfer { return &Transfer{newHTTPClient(base)} }

func (t *Transfer) TransferOut(requestID, accountRef string, amount *big.Int) error {
	return t.post("/v1/transfers", map[string]string{
		"request_id": requestID,
		"account":    accountRef,
		"amount":     amount.String(),
	})
}

// Swap exchanges funds between currencies.
type Swap struct{ httpClient }

func NewSwap(base string) *Swap { return &Swap{newHTTPClient(base)} }

func (s *Swap) Swap(requestID string, amountIn *big.Int, targetCurrency string) error {
	return s.post("/v1/swaps", map[string]string{
		"request_id":      requestID,
		"amount_in":       amountIn.String(),
		"target_currency": targetCurrency,
	})
}

// Oracle quotes asset prices.
type Oracle struct{ httpClient }

func NewOracle(base string) *Oracle { return &Oracle{newHTTPClient(base)} }

func (o *Oracle) Price(asset, quote string) (*big.Rat, error) {
	var payload struct {
		Numerator   string `json:"numerator"`
		Denominator string `json:"denominator"`
	}
	path := fmt.Sprintf("/v1/prices?base=%s&quote=%s", asset, quote)
	if err := o.get(path, &payload); err != nil {
		return nil, err
	}
	num, ok := new(big.Int).SetString(payload.Numerator, 10)
	if !ok || num.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s/%s", lease.ErrNoPrice, asset, quote)
	}
	den, ok := new(big.Int).SetString(payload.Denominator, 10)
	if !ok || den.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s/%s", lease.ErrNoPrice, asset, quote)
	}
	return new(big.Rat).SetFrac(num, den), nil
}

// Bank returns funds to customers.
type Bank struct{ httpClient }

func NewBank(base string) *Bank { return &Bank{newHTTPClient(base)} }

func (b *Bank) Refund(account string, amount *big.Int, currency string) error {
	return b.post("/v1/refunds", map[string]string{
		"account":  account,
		"amount":   amount.String(),
		"currency": currency,
	})
}
