package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/user/domain"
	"github.com/smallbiznis/donara/pkg/db"
	"github.com/smallbiznis/donara/pkg/db/option"
	"github.com/smallbiznis/donara/pkg/db/pagination"
	"github.com/smallbiznis/donara/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
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
	repo  repository.Repository[domain.User]
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: c,
		repo:  repository.ProvideStore[domain.User](p.DB),
	}
}

// Login creates the donor on first sight and refreshes missing profile fields from the token.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		return nil, domain.ErrInvalidUID
	}
	now := s.clock.Now().UTC()

	existing, err := s.repo.FindOne(ctx, &domain.User{UID: uid})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		user := &domain.User{
			ID:          s.genID.Generate(),
			UID:         uid,
			Role:        domain.RoleDonor,
			Name:        strings.TrimSpace(req.Name),
			Email:       strings.TrimSpace(req.Email),
			Phone:       strings.TrimSpace(req.Phone),
			LastLoginAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return nil, err
			}
			// a concurrent first login won the insert
			return s.Get(ctx, uid)
		}
		s.log.Info("donor created", zap.String("uid", uid), zap.String("user_id", user.ID.String()))
		return user, nil
	}

	updates := map[string]any{"last_login_at": now, "updated_at": now}
	if existing.Email == "" && strings.TrimSpace(req.Email) != "" {
		updates["email"] = strings.TrimSpace(req.Email)
	}
	if existing.Name == "" && strings.TrimSpace(req.Name) != "" {
		updates["name"] = strings.TrimSpace(req.Name)
	}
	if existing.Phone == "" && strings.TrimSpace(req.Phone) != "" {
		updates["phone"] = strings.TrimSpace(req.Phone)
	}
	if err := s.repo.Update(ctx, existing.ID, updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

func (s *Service) Register(ctx context.Context, uid string, req domain.RegisterRequest) (*domain.User, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

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
	phone := strings.TrimSpace(req.Phone)
	if phone != "" && !validPhone(phone) {
		return nil, domain.ErrInvalidPhone
	}

	updates := map[string]any{
		"name":       name,
		"address":    strings.TrimSpace(req.Address),
		"registered": true,
		"updated_at": s.clock.Now().UTC(),
	}
	if email != "" {
		updates["email"] = email
	}
	if phone != "" {
		updates["phone"] = phone
	}
	if err := s.repo.Update(ctx, user.ID, updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

func (s *Service) Get(ctx context.Context, uid string) (*domain.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, domain.ErrInvalidUID
	}
	user, err := s.repo.FindOne(ctx, &domain.User{UID: uid})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *Service) UpdateDeviceToken(ctx context.Context, uid string, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidToken
	}
	user, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, user.ID, map[string]any{
		"fcm_token":  token,
		"updated_at": s.clock.Now().UTC(),
	})
}

// List pages through every donor account, newest first.
func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	size := req.Pagination.Size()
	opts := []option.QueryOption{option.WithOrder("id desc"), option.WithLimit(size + 1)}
	if token := strings.TrimSpace(req.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil || afterID == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		opts = append(opts, option.WithWhere("id < ?", afterID))
	}

	rows, err := s.repo.Find(ctx, &domain.User{Role: domain.RoleDonor}, opts...)
	if err != nil {
		return domain.ListResponse{}, err
	}

	var encodeErr error
	rows, info := pagination.BuildCursorPageInfo(rows, size, func(u *domain.User) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: u.ID.String()})
		if err != nil {
			encodeErr = err
		}
		return token
	})
	if encodeErr != nil {
		return domain.ListResponse{}, encodeErr
	}
	if rows == nil {
		rows = []*domain.User{}
	}
	return domain.ListResponse{Donors: rows, PageInfo: info}, nil
}

func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0, r == ' ', r == '-':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}
