package validator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

const defaultHTTPTimeout = 2 * time.Second

// doJSON faz uma única chamada; as re-tentativas ficam com quem chama.
// Falhas de rede, 429 e 5xx voltam embrulhadas em domain.ErrTransport.
func doJSON(ctx context.Context, client *http.Client, method, target string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: HTTP request failed: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read response body: %v", domain.ErrTransport, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("%w: remote error (%d): %s", domain.ErrTransport, resp.StatusCode, string(respBody))
	}
	if out != nil && resp.StatusCode < 300 && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type remoteVerdict struct {
	Decision      domain.Decision `json:"decision"`
	Detail        string          `json:"detail,omitempty"`
	ReservationID string          `json:"reservation_id,omitempty"`
}

// HTTPValidator encaminha a ValidationRequest para um serviço externo.
// Resposta 2xx traz o veredito; 4xx vira DECLINE com o status no detalhe.
type HTTPValidator struct {
	kind     domain.ValidatorKind
	endpoint string
	client   *http.Client
}

func NewHTTPValidator(kind domain.ValidatorKind, endpoint string, client *http.Client) *HTTPValidator {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPValidator{kind: kind, endpoint: endpoint, client: client}
}

func (v *HTTPValidator) Kind() domain.ValidatorKind {
	return v.kind
}

func (v *HTTPValidator) Validate(ctx context.Context, req domain.ValidationRequest) (domain.Verdict, error) {
	var out remoteVerdict
	status, err := doJSON(ctx, v.client, http.MethodPost, v.endpoint, req, &out)
	if err != nil {
		return domain.Verdict{}, err
	}
	if status >= 400 {
		return domain.Verdict{
			Decision: domain.DecisionDecline,
			Detail:   fmt.Sprintf("validator responded %d", status),
		}, nil
	}

	switch out.Decision {
	case domain.DecisionApprove, domain.DecisionDecline, domain.DecisionError:
	default:
		return domain.Verdict{}, fmt.Errorf("%w: unknown decision %q", domain.ErrTransport, out.Decision)
	}
	return domain.Verdict{
		Decision:      out.Decision,
		Detail:        out.Detail,
		ReservationID: out.ReservationID,
	}, nil
}

// HTTPLedgerClient fala com o serviço de ledger externo.
//
//	POST {base}/reservations               -> 201 Reservation | 404 conta | 422 saldo
//	POST {base}/reservations/{id}/commit   -> 2xx | 404 | 409 já liberada | 410 expirada
//	POST {base}/reservations/{id}/release  -> 2xx | 404 | 409 já confirmada
type HTTPLedgerClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPLedgerClient(baseURL string, client *http.Client) *HTTPLedgerClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPLedgerClient{baseURL: baseURL, client: client}
}

type reserveRequest struct {
	TransactionID string `json:"transaction_id"`
	Account       string `json:"account"`
	Amount        int64  `json:"amount"`
}

func (c *HTTPLedgerClient) Reserve(ctx context.Context, txnID, account string, amount int64) (domain.Reservation, error) {
	var out domain.Reservation
	status, err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/reservations",
		reserveRequest{TransactionID: txnID, Account: account, Amount: amount}, &out)
	if err != nil {
		return domain.Reservation{}, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		if out.ID == "" {
			return domain.Reservation{}, fmt.Errorf("%w: reservation without id", domain.ErrTransport)
		}
		return out, nil
	case http.StatusNotFound:
		return domain.Reservation{}, domain.ErrAccountNotFound
	case http.StatusUnprocessableEntity:
		return domain.Reservation{}, domain.ErrInsufficientFunds
	default:
		return domain.Reservation{}, fmt.Errorf("unexpected ledger status %d on reserve", status)
	}
}

func (c *HTTPLedgerClient) Commit(ctx context.Context, reservationID string) error {
	status, err := doJSON(ctx, c.client, http.MethodPost, c.reservationURL(reservationID, "commit"), nil, nil)
	if err != nil {
		return err
	}

	switch {
	case status < 300:
		return nil
	case status == http.StatusNotFound:
		return domain.ErrReservationNotFound
	case status == http.StatusConflict:
		return domain.ErrReservationReleased
	case status == http.StatusGone:
		return domain.ErrReservationExpired
	default:
		return fmt.Errorf("unexpected ledger status %d on commit", status)
	}
}

func (c *HTTPLedgerClient) Release(ctx context.Context, reservationID string) error {
	status, err := doJSON(ctx, c.client, http.MethodPost, c.reservationURL(reservationID, "release"), nil, nil)
	if err != nil {
		return err
	}

	switch {
	case status < 300:
		return nil
	case status == http.StatusNotFound:
		return domain.ErrReservationNotFound
	case status == http.StatusConflict:
		return domain.ErrReservationCommitted
	default:
		return fmt.Errorf("unexpected ledger status %d on release", status)
	}
}

func (c *HTTPLedgerClient) reservationURL(id, action string) string {
	return c.baseURL + "/reservations/" + url.PathEscape(id) + "/" + action
}
