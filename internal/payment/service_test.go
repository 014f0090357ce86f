package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talkscene/talkscene/internal/payment"
	"github.com/talkscene/talkscene/internal/payment/mock"
	"github.com/talkscene/talkscene/internal/user"
)

func newFixture(t *testing.T, provider payment.Provider) (*payment.Service, user.Store, *user.User) {
	t.Helper()
	ctx := context.Background()
	users := user.NewMemStore()
	u := &user.User{ID: "u1", Email: "u1@example.com"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return payment.NewService(provider, users, nil), users, u
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prov := &mock.Provider{
		Subscription: &payment.Subscription{ID: "sub-42", Provider: "stripe", Tier: "pro", CheckoutURL: "https://pay.example/42"},
	}
	svc, users, u := newFixture(t, prov)

	sub, err := svc.Subscribe(ctx, u, user.TierPro, "stripe")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.CheckoutURL == "" {
		t.Error("subscription should carry a checkout url")
	}
	if len(prov.CreateCalls) != 1 || prov.CreateCalls[0].Tier != "pro" {
		t.Errorf("provider calls = %+v", prov.CreateCalls)
	}

	stored, _ := users.Get(ctx, "u1")
	if stored.Tier != user.TierPro || stored.SubscriptionID != "sub-42" {
		t.Errorf("stored tier/sub = %s/%s, want pro/sub-42", stored.Tier, stored.SubscriptionID)
	}
}

func TestSubscribe_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, u := newFixture(t, nil)
	if _, err := svc.Subscribe(ctx, u, user.TierPro, "stripe"); !errors.Is(err, payment.ErrNoProvider) {
		t.Errorf("no provider: want ErrNoProvider, got %v", err)
	}

	svc, _, u = newFixture(t, &mock.Provider{})
	if _, err := svc.Subscribe(ctx, u, user.TierFree, "stripe"); !errors.Is(err, payment.ErrInvalidTier) {
		t.Errorf("free tier: want ErrInvalidTier, got %v", err)
	}
	if _, err := svc.Subscribe(ctx, u, "gold", "stripe"); !errors.Is(err, payment.ErrInvalidTier) {
		t.Errorf("unknown tier: want ErrInvalidTier, got %v", err)
	}
}

func TestSubscribe_ProviderFailureLeavesTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prov := &mock.Provider{CreateErr: errors.New("card declined")}
	svc, users, u := newFixture(t, prov)

	if _, err := svc.Subscribe(ctx, u, user.TierPro, "stripe"); err == nil {
		t.Fatal("expected provider error, got nil")
	}
	stored, _ := users.Get(ctx, "u1")
	if stored.Tier != user.TierFree {
		t.Errorf("tier = %s, want free after failed subscribe", stored.Tier)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prov := &mock.Provider{}
	svc, users, u := newFixture(t, prov)

	if _, err := svc.Subscribe(ctx, u, user.TierPro, "stripe"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := svc.Cancel(ctx, u); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(prov.CancelCalls) != 1 {
		t.Errorf("cancel calls = %v", prov.CancelCalls)
	}

	stored, _ := users.Get(ctx, "u1")
	if stored.Tier != user.TierFree || stored.SubscriptionID != "" {
		t.Errorf("after cancel: tier=%s sub=%q", stored.Tier, stored.SubscriptionID)
	}

	if err := svc.Cancel(ctx, u); !errors.Is(err, payment.ErrNotSubscribed) {
		t.Errorf("second cancel: want ErrNotSubscribed, got %v", err)
	}
}

func TestRESTProvider(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/subscriptions":
			if r.Header.Get("Authorization") != "Bearer key-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"sub-9","provider":"stripe","tier":"pro"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/subscriptions/sub-9":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := payment.NewRESTProvider(srv.URL, "key-1")
	if err != nil {
		t.Fatalf("NewRESTProvider: %v", err)
	}

	sub, err := p.CreateSubscription(context.Background(), payment.CreateRequest{UserID: "u1", Tier: "pro"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if sub.ID != "sub-9" {
		t.Errorf("id = %q, want sub-9", sub.ID)
	}

	if err := p.CancelSubscription(context.Background(), "sub-9"); err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	// Cancelling something already gone is fine.
	if err := p.CancelSubscription(context.Background(), "sub-gone"); err != nil {
		t.Fatalf("CancelSubscription missing: %v", err)
	}
}
