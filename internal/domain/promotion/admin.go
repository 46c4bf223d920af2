package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrInvalidTransition is returned for lifecycle moves the state machine
// does not allow, e.g. resuming a promotion that is not paused.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrInvalidPromotion is returned when a promotion definition violates a
// model invariant, e.g. a free-gift promotion with an empty gift pool.
var ErrInvalidPromotion = errors.New("invalid promotion definition")

// Lifecycle drives the admin state machine:
// draft -> scheduled/active -> paused <-> active, with expiry derived from
// the time window. Every mutation goes through the AdminRepository.
type Lifecycle struct {
	repo AdminRepository
	now  func() time.Time
}

// NewLifecycle creates a Lifecycle over the given repository.
func NewLifecycle(repo AdminRepository) *Lifecycle {
	return &Lifecycle{repo: repo, now: time.Now}
}

// Create validates the definition and persists it as a draft.
func (l *Lifecycle) Create(ctx context.Context, p *Promotion) error {
	if err := validateDefinition(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Status = StatusDraft
	p.UsageCount = 0
	return l.repo.Create(ctx, p)
}

// Activate moves a draft, scheduled, or paused promotion into the active
// state. Promotions past their end date cannot be activated.
func (l *Lifecycle) Activate(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusActive, func(p *Promotion) error {
		switch p.Status {
		case StatusDraft, StatusScheduled, StatusPaused:
		default:
			return errors.Wrapf(ErrInvalidTransition, "cannot activate %s promotion", p.Status)
		}
		if l.now().After(p.EndsAt) {
			return errors.Wrap(ErrInvalidTransition, "promotion window has ended")
		}
		return nil
	})
}

// Schedule marks a draft for automatic activation at its start date.
func (l *Lifecycle) Schedule(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusScheduled, func(p *Promotion) error {
		if p.Status != StatusDraft {
			return errors.Wrapf(ErrInvalidTransition, "cannot schedule %s promotion", p.Status)
		}
		return nil
	})
}

// Pause suspends an active promotion without losing its usage counters.
func (l *Lifecycle) Pause(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusPaused, func(p *Promotion) error {
		if p.Status != StatusActive {
			return errors.Wrapf(ErrInvalidTransition, "cannot pause %s promotion", p.Status)
		}
		return nil
	})
}

// Resume reactivates a paused promotion.
func (l *Lifecycle) Resume(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusActive, func(p *Promotion) error {
		if p.Status != StatusPaused {
			return errors.Wrapf(ErrInvalidTransition, "cannot resume %s promotion", p.Status)
		}
		if l.now().After(p.EndsAt) {
			return errors.Wrap(ErrInvalidTransition, "promotion window has ended")
		}
		return nil
	})
}

// Duplicate copies an existing promotion into a fresh draft with zeroed
// usage and a new id. The copy's name is suffixed to keep listings readable.
func (l *Lifecycle) Duplicate(ctx context.Context, id string) (*Promotion, error) {
	src, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dup := *src
	dup.ID = uuid.New().String()
	dup.Name = src.Name + " (copy)"
	dup.Status = StatusDraft
	dup.UsageCount = 0
	dup.Code = ""
	if err := l.repo.Create(ctx, &dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

// Delete removes the promotion. Gift lines sourced by it cascade out of
// carts on their next evaluation pass.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	return l.repo.Delete(ctx, id)
}

func (l *Lifecycle) transition(ctx context.Context, id string, to Status, check func(*Promotion) error) error {
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := check(p); err != nil {
		return err
	}
	return l.repo.SetStatus(ctx, id, to)
}

func validateDefinition(p *Promotion) error {
	switch p.Type {
	case TypePercentageDiscount, TypeFixedDiscount, TypeFreeGift:
	default:
		return errors.Wrapf(ErrInvalidPromotion, "unknown type %q", p.Type)
	}
	if p.Name == "" {
		return errors.Wrap(ErrInvalidPromotion, "name required")
	}
	if !p.EndsAt.After(p.StartsAt) {
		return errors.Wrap(ErrInvalidPromotion, "end date must follow start date")
	}
	if p.Benefit.BenefitType == "" {
		p.Benefit.BenefitType = p.Type
	}
	if p.Type == TypeFreeGift && len(p.Benefit.GiftProductIDs) == 0 {
		return errors.Wrap(ErrInvalidPromotion, "free_gift promotion requires a gift pool")
	}
	if p.Benefit.Value.IsNegative() {
		return errors.Wrap(ErrInvalidPromotion, "benefit value must not be negative")
	}
	return nil
}
