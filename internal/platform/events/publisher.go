// Package events delivers billing domain events to registered HTTP
// subscribers. Deliveries are signed with HMAC-SHA256, logged, and can be
// retried. An Echo handler exposes subscription management over the API.
package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the billing pipeline.
const (
	TypeReceiptCreated       = "receipt.created"
	TypeReceiptPaid          = "receipt.paid"
	TypeReceiptPartiallyPaid = "receipt.partially_paid"
	TypeReceiptVoided        = "receipt.voided"
	TypeReceiptRefunded      = "receipt.refunded"
	TypeInventoryPosted      = "inventory.transaction_posted"
	TypeFinancialPosted      = "financial.transaction_posted"
)

// Event is an outbound domain event.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and timestamp. The payload is
// marshalled immediately so a later mutation of v cannot change what
// subscribers see.
func NewEvent(eventType, resourceType, resourceID string, v interface{}) (Event, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return Event{
		ID:           uuid.New().String(),
		Type:         eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// Subscription is a registered event destination.
type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery records a single delivery attempt of an event to a subscriber.
type Delivery struct {
	ID             string        `json:"id"`
	SubscriptionID string        `json:"subscription_id"`
	EventType      string        `json:"event_type"`
	EventID        string        `json:"event_id"`
	Payload        []byte        `json:"payload"`
	Signature      string        `json:"signature"`
	StatusCode     int           `json:"status_code"`
	ResponseBody   string        `json:"response_body"`
	Duration       time.Duration `json:"duration_ns"`
	Attempt        int           `json:"attempt"`
	Status         string        `json:"status"` // "success", "failed", "pending"
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// DeliveryResult summarises delivering one event to one subscriber.
type DeliveryResult struct {
	SubscriptionID string `json:"subscription_id"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code"`
	Error          string `json:"error,omitempty"`
}

// Store persists subscriptions and delivery attempts.
type Store interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, limit, offset int) ([]*Subscription, int, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, subscriptionID string, limit, offset int) ([]*Delivery, int, error)
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
}

// InMemoryStore is a thread-safe, in-memory Store.
type InMemoryStore struct {
	mu            sync.RWMutex
	subs          map[string]*Subscription
	deliveries    map[string]*Delivery
	subOrder      []string
	deliveryOrder []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subs:       make(map[string]*Subscription),
		deliveries: make(map[string]*Delivery),
	}
}

func (s *InMemoryStore) CreateSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	s.subOrder = append(s.subOrder, sub.ID)
	return nil
}

func (s *InMemoryStore) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", id)
	}
	return sub, nil
}

func (s *InMemoryStore) ListSubscriptions(_ context.Context, limit, offset int) ([]*Subscription, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Subscription
	for _, id := range s.subOrder {
		if sub := s.subs[id]; sub != nil {
			all = append(all, sub)
		}
	}
	total := len(all)
	if offset >= total {
		return []*Subscription{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *InMemoryStore) UpdateSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return fmt.Errorf("subscription %s not found", sub.ID)
	}
	s.subs[sub.ID] = sub
	return nil
}

func (s *InMemoryStore) DeleteSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(s.subs, id)
	for i, sid := range s.subOrder {
		if sid == id {
			s.subOrder = append(s.subOrder[:i], s.subOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d
	s.deliveryOrder = append(s.deliveryOrder, d.ID)
	return nil
}

func (s *InMemoryStore) ListDeliveries(_ context.Context, subscriptionID string, limit, offset int) ([]*Delivery, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*Delivery
	for _, id := range s.deliveryOrder {
		d := s.deliveries[id]
		if d == nil {
			continue
		}
		if d.SubscriptionID == subscriptionID {
			filtered = append(filtered, d)
		}
	}
	total := len(filtered)
	if offset >= total {
		return []*Delivery{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (s *InMemoryStore) GetDelivery(_ context.Context, id string) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s not found", id)
	}
	return d, nil
}

// SignPayload computes the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the HMAC-SHA256 of
// payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) PublisherOption {
	return func(p *Publisher) { p.httpClient = c }
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) PublisherOption {
	return func(p *Publisher) { p.maxRetries = n }
}

// Publisher fans events out to matching subscribers and keeps the
// delivery log.
type Publisher struct {
	store      Store
	httpClient *http.Client
	maxRetries int
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store: store,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// generateSecret produces a cryptographically random 32-byte hex string.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validateSubscriptionURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Subscribe validates and persists a new subscription. If secret is empty
// a cryptographically random one is generated.
func (p *Publisher) Subscribe(ctx context.Context, rawURL, secret string, eventTypes []string) (*Subscription, error) {
	if err := validateSubscriptionURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		secret = s
	}

	sub := &Subscription{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Secret:    secret,
		Events:    eventTypes,
		Status:    "active",
		CreatedAt: time.Now(),
	}
	if err := p.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Pause sets the subscription status to "paused".
func (p *Publisher) Pause(ctx context.Context, id string) error {
	sub, err := p.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	sub.Status = "paused"
	return p.store.UpdateSubscription(ctx, sub)
}

// Resume sets the subscription status to "active".
func (p *Publisher) Resume(ctx context.Context, id string) error {
	sub, err := p.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	sub.Status = "active"
	return p.store.UpdateSubscription(ctx, sub)
}

// eventMatches returns true if the event type matches a subscription
// pattern. Patterns can be exact ("receipt.paid") or wildcard
// ("receipt.*", "*.posted").
func eventMatches(pattern, eventType string) bool {
	if pattern == eventType {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(eventType, pattern[1:])
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func subscriptionMatchesEvent(sub *Subscription, eventType string) bool {
	for _, pat := range sub.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// Publish sends the event to all matching, active subscriptions.
func (p *Publisher) Publish(ctx context.Context, event Event) []DeliveryResult {
	subs, _, err := p.store.ListSubscriptions(ctx, 1000, 0)
	if err != nil {
		return nil
	}

	var results []DeliveryResult
	for _, sub := range subs {
		if sub.Status != "active" {
			continue
		}
		if !subscriptionMatchesEvent(sub, event.Type) {
			continue
		}
		delivery := p.deliver(ctx, sub, event)
		results = append(results, DeliveryResult{
			SubscriptionID: sub.ID,
			Success:        delivery.Status == "success",
			StatusCode:     delivery.StatusCode,
			Error:          delivery.Error,
		})
	}
	return results
}

// deliver signs the payload and POSTs it to the subscriber, recording the
// result.
func (p *Publisher) deliver(ctx context.Context, sub *Subscription, event Event) *Delivery {
	payload, _ := json.Marshal(event)
	sig := SignPayload(payload, sub.Secret)
	now := time.Now()

	delivery := &Delivery{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		EventType:      event.Type,
		EventID:        event.ID,
		Payload:        payload,
		Signature:      sig,
		Attempt:        1,
		Status:         "pending",
		CreatedAt:      now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		delivery.Status = "failed"
		delivery.Error = err.Error()
		p.store.RecordDelivery(ctx, delivery)
		return delivery
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Billing-Signature", "sha256="+sig)
	req.Header.Set("X-Billing-Subscription", sub.ID)
	req.Header.Set("X-Billing-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	delivery.Duration = time.Since(start)

	if err != nil {
		delivery.Status = "failed"
		delivery.Error = err.Error()
		delivery.StatusCode = 0
		p.store.RecordDelivery(ctx, delivery)
		return delivery
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode

	// Keep at most 1KB of the subscriber's response.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	delivery.ResponseBody = string(bodyBytes)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Status = "success"
	} else {
		delivery.Status = "failed"
		delivery.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}

	p.store.RecordDelivery(ctx, delivery)
	return delivery
}

// RetryDelivery re-delivers a previously failed attempt, incrementing the
// attempt counter.
func (p *Publisher) RetryDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	original, err := p.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("delivery not found: %w", err)
	}

	sub, err := p.store.GetSubscription(ctx, original.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	var event Event
	if err := json.Unmarshal(original.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original payload: %w", err)
	}

	delivery := p.deliver(ctx, sub, event)
	delivery.Attempt = original.Attempt + 1

	p.store.RecordDelivery(ctx, delivery)

	return delivery, nil
}

// TestSubscription sends a synthetic event to verify connectivity.
func (p *Publisher) TestSubscription(ctx context.Context, id string) (*Delivery, error) {
	sub, err := p.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	testEvent := Event{
		ID:           uuid.New().String(),
		Type:         "subscription.test",
		ResourceType: "Subscription",
		ResourceID:   sub.ID,
		Payload:      json.RawMessage(`{"test":true}`),
		Timestamp:    time.Now(),
	}

	return p.deliver(ctx, sub, testEvent), nil
}

// DeliveryLogs returns paginated delivery attempts for a subscription.
func (p *Publisher) DeliveryLogs(ctx context.Context, subscriptionID string, limit, offset int) ([]*Delivery, int, error) {
	return p.store.ListDeliveries(ctx, subscriptionID, limit, offset)
}
