package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/donara/internal/cache"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/orphanage/domain"
	"github.com/smallbiznis/donara/pkg/db/option"
	"github.com/smallbiznis/donara/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	itemTTL = 5 * time.Minute
	listTTL = time.Minute

	listKeyVerified = "verified"
	listKeyAll      = "all"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.Orphanage]

	items cache.Cache[snowflake.ID, domain.Orphanage]
	lists cache.Cache[string, []domain.Orphanage]
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("orphanage.service"),
		genID: p.GenID,
		clock: c,
		repo:  repository.ProvideStore[domain.Orphanage](p.DB),
		items: cache.NewTTLCache[snowflake.ID, domain.Orphanage](),
		lists: cache.NewTTLCache[string, []domain.Orphanage](),
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Orphanage, error) {
	key := listKeyVerified
	if req.IncludeUnverified {
		key = listKeyAll
	}
	if cached, ok := s.lists.Get(key); ok {
		return cached, nil
	}

	opts := []option.QueryOption{option.WithOrder("name asc, id asc")}
	if !req.IncludeUnverified {
		opts = append(opts, option.WithWhere("verified = ?", true))
	}
	items, err := s.repo.Find(ctx, &domain.Orphanage{}, opts...)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Orphanage, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	s.lists.Set(key, out, listTTL)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Orphanage, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	if cached, ok := s.items.Get(id); ok {
		return &cached, nil
	}
	item, err := s.repo.FindOne(ctx, &domain.Orphanage{ID: id})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	s.items.Set(id, *item, itemTTL)
	return item, nil
}

func (s *Service) GetVerified(ctx context.Context, id snowflake.ID) (*domain.Orphanage, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Verified {
		return nil, domain.ErrNotVerified
	}
	return item, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Orphanage, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, domain.ErrInvalidEmail
		}
	}

	now := s.clock.Now().UTC()
	id := s.genID.Generate()
	itemSlug, err := s.uniqueSlug(ctx, name, id)
	if err != nil {
		return nil, err
	}
	item := &domain.Orphanage{
		ID:          id,
		Name:        name,
		Slug:        itemSlug,
		Description: strings.TrimSpace(req.Description),
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		State:       strings.TrimSpace(req.State),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       email,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		UPIID:       strings.TrimSpace(req.UPIID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.lists.Purge()
	s.log.Info("orphanage created", zap.String("orphanage_id", id.String()), zap.String("slug", itemSlug))
	return item, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Orphanage, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		if name != current.Name {
			itemSlug, err := s.uniqueSlug(ctx, name, id)
			if err != nil {
				return nil, err
			}
			updates["name"] = name
			updates["slug"] = itemSlug
		}
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return nil, domain.ErrInvalidEmail
			}
		}
		updates["email"] = email
	}
	setTrimmed(updates, "description", req.Description)
	setTrimmed(updates, "address", req.Address)
	setTrimmed(updates, "city", req.City)
	setTrimmed(updates, "state", req.State)
	setTrimmed(updates, "phone", req.Phone)
	setTrimmed(updates, "image_url", req.ImageURL)
	setTrimmed(updates, "upi_id", req.UPIID)
	if len(updates) == 0 {
		return current, nil
	}
	updates["updated_at"] = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	s.invalidate(id)
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	s.log.Info("orphanage deleted", zap.String("orphanage_id", id.String()))
	return nil
}

// VerifyByName marks the live orphanage with exactly this name as verified.
func (s *Service) VerifyByName(ctx context.Context, name string) (*domain.Orphanage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	item, err := s.repo.FindOne(ctx, &domain.Orphanage{}, option.WithWhere("name = ?", name))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if item.Verified {
		return item, nil
	}

	now := s.clock.Now().UTC()
	if err := s.repo.Update(ctx, item.ID, map[string]any{
		"verified":    true,
		"verified_at": now,
		"updated_at":  now,
	}); err != nil {
		return nil, err
	}
	s.invalidate(item.ID)
	s.log.Info("orphanage verified", zap.String("orphanage_id", item.ID.String()))
	return s.Get(ctx, item.ID)
}

func (s *Service) uniqueSlug(ctx context.Context, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "orphanage"
	}
	existing, err := s.findBySlug(ctx, base)
	if err != nil {
		return "", err
	}
	if existing == nil || existing.ID == id {
		return base, nil
	}
	return base + "-" + id.Base36(), nil
}

func (s *Service) findBySlug(ctx context.Context, value string) (*domain.Orphanage, error) {
	// deleted rows keep their slug under the unique index
	var item domain.Orphanage
	err := s.db.WithContext(ctx).Unscoped().Where("slug = ?", value).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (s *Service) invalidate(id snowflake.ID) {
	s.items.Delete(id)
	s.lists.Purge()
}

func setTrimmed(updates map[string]any, column string, value *string) {
	if value != nil {
		updates[column] = strings.TrimSpace(*value)
	}
}
