package character

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/pkg/provider/image"
)

// CreateRequest carries everything needed to generate a character portrait
// and persist the record.
type CreateRequest struct {
	OwnerID string
	Name    string
	Gender  Gender
	Style   Style

	// ScenarioHint optionally names the scenario the character is made for;
	// it flavours the portrait and is remembered on the record.
	ScenarioHint string

	// BackgroundPrompt, when set, replaces the default portrait setting with
	// pre-composed prompt components.
	BackgroundPrompt string
}

// Creator generates character portraits and persists the resulting records.
// Portrait generation is metered against the image quota; the record is only
// created when generation succeeded.
type Creator struct {
	images image.Provider
	store  Store
	ledger *usage.Ledger
	log    *slog.Logger

	size image.Size
	now  func() time.Time
}

// CreatorOption is a functional option for Creator.
type CreatorOption func(*Creator)

// WithPortraitSize overrides the generated portrait size.
func WithPortraitSize(s image.Size) CreatorOption {
	return func(c *Creator) { c.size = s }
}

// NewCreator returns a Creator over the given collaborators.
func NewCreator(images image.Provider, store Store, ledger *usage.Ledger, log *slog.Logger, opts ...CreatorOption) *Creator {
	if log == nil {
		log = slog.Default()
	}
	c := &Creator{
		images: images,
		store:  store,
		ledger: ledger,
		log:    log,
		size:   image.Size512,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create generates a portrait for the request and persists the character.
// Quota denial surfaces as *usage.QuotaError before any provider call; the
// usage counter is charged only after generation succeeded.
func (c *Creator) Create(ctx context.Context, req CreateRequest) (*Character, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	q, err := c.ledger.CheckQuota(ctx, req.OwnerID, usage.MetricImage)
	if err != nil {
		return nil, fmt.Errorf("character: quota check: %w", err)
	}
	if !q.Allowed {
		return nil, &usage.QuotaError{Metric: usage.MetricImage, Quota: q}
	}

	ref, err := c.images.Generate(ctx, image.Request{
		Prompt: portraitPrompt(req),
		Size:   c.size,
	})
	if err != nil {
		return nil, fmt.Errorf("character: generate portrait: %w", err)
	}

	if err := c.ledger.Increment(ctx, req.OwnerID, usage.MetricImage); err != nil {
		// The user already has the portrait; losing one count is preferable
		// to failing the creation.
		c.log.Error("image usage increment failed", "owner_id", req.OwnerID, "error", err)
	}

	now := c.now().UTC()
	char := &Character{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		Name:         strings.TrimSpace(req.Name),
		Gender:       req.Gender,
		Style:        req.Style,
		PortraitRef:  portraitRef(ref),
		ScenarioHint: strings.TrimSpace(req.ScenarioHint),
		CreatedAt:    now,
		LastUsedAt:   now,
	}
	if err := c.store.Create(ctx, char); err != nil {
		return nil, fmt.Errorf("character: persist: %w", err)
	}

	c.log.Info("character created", "owner_id", char.OwnerID, "character_id", char.ID, "name", char.Name)
	return char, nil
}

func validateCreate(req CreateRequest) error {
	probe := Character{
		ID:      "pending",
		OwnerID: req.OwnerID,
		Name:    strings.TrimSpace(req.Name),
		Gender:  req.Gender,
		Style:   req.Style,
	}
	return probe.Validate()
}

// portraitPrompt builds the image-generation prompt for the request.
func portraitPrompt(req CreateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Portrait of %s, a %s %s conversation partner, friendly anime illustration style, upper body, facing the viewer",
		strings.TrimSpace(req.Name), req.Style, req.Gender)
	if req.BackgroundPrompt != "" {
		fmt.Fprintf(&b, ", %s", strings.TrimSpace(req.BackgroundPrompt))
	} else if req.ScenarioHint != "" {
		fmt.Fprintf(&b, ", in a scene suggesting: %s", strings.TrimSpace(req.ScenarioHint))
	}
	return b.String()
}

// portraitRef picks the stable reference for a generated image: the hosted
// URL when the provider gives one, otherwise an inline data URI.
func portraitRef(ref *image.Ref) string {
	if ref.URL != "" {
		return ref.URL
	}
	return "data:image/png;base64," + ref.B64
}
