package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paasforest/proconnect-access/pkg/logging"
)

// FeedClient reads recent credits from the bank feed collaborator.
type FeedClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewFeedClient(baseURL, token string) *FeedClient {
	return &FeedClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Transactions returns credits received at or after since.
func (c *FeedClient) Transactions(ctx context.Context, since time.Time) ([]BankTransaction, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("bank feed: not configured")
	}
	endpoint := c.baseURL + "/transactions?" + url.Values{"since": {since.UTC().Format(time.RFC3339)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("bank feed: request build: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank feed: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("bank feed: status %d", resp.StatusCode)
	}
	var payload struct {
		Transactions []BankTransaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("bank feed: decode: %w", err)
	}
	return payload.Transactions, nil
}

// TransactionSource is what the poller reads from.
type TransactionSource interface {
	Transactions(ctx context.Context, since time.Time) ([]BankTransaction, error)
}

// Poller pulls the feed and hands each transaction to the processor. The
// cursor only advances past transactions that were processed.
type Poller struct {
	source    TransactionSource
	processor *Processor
	logger    *logging.Logger
	overlap   time.Duration

	mu     sync.Mutex
	cursor time.Time
}

func NewPoller(source TransactionSource, processor *Processor, start time.Time, logger *logging.Logger) *Poller {
	if source == nil || processor == nil {
		panic("reconciliation: source and processor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		source:    source,
		processor: processor,
		logger:    logger,
		overlap:   5 * time.Minute,
		cursor:    start,
	}
}

// PollOnce fetches and processes one page. It returns how many transactions
// were newly applied. Concurrent calls are serialised.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txns, err := p.source.Transactions(ctx, p.cursor.Add(-p.overlap))
	if err != nil {
		return 0, err
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].ReceivedAt.Before(txns[j].ReceivedAt) })

	applied := 0
	latest := p.cursor
	for _, txn := range txns {
		result, err := p.processor.Process(ctx, SourceFeed, txn)
		if err != nil {
			// The cursor stays before this transaction so the next poll retries it.
			p.logger.Error("bank feed transaction failed", "transaction_id", txn.ID, "error", err)
			break
		}
		if result == ResultVerified || result == ResultActivated {
			applied++
		}
		if txn.ReceivedAt.After(latest) {
			latest = txn.ReceivedAt
		}
	}
	p.cursor = latest
	return applied, nil
}

// Cursor reports the receive time the next poll starts from, before overlap.
func (p *Poller) Cursor() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}
