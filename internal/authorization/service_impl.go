package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AdminRoles resolves the current role of an admin account.
type AdminRoles interface {
	FindByID(ctx context.Context, id snowflake.ID) (*authdomain.Admin, error)
}

type Params struct {
	fx.In

	Admins   authdomain.Repository
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	admins   AdminRoles
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewService(p Params) Service {
	return &ServiceImpl{
		admins:   p.Admins,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor, object, action = strings.TrimSpace(actor), strings.TrimSpace(object), strings.TrimSpace(action)
	switch {
	case actor == "":
		return ErrInvalidActor
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	subject, role, err := s.subjectFor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.linkRole(subject, role); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// subjectFor maps "system" and "admin:<id>" actors to a casbin subject and the
// role it should hold right now. Admin roles are read on every call so a
// demotion takes effect on the next request.
func (s *ServiceImpl) subjectFor(ctx context.Context, actor string) (string, string, error) {
	if actor == subjectSystem {
		return subjectSystem, roleSystem, nil
	}
	raw, ok := strings.CutPrefix(actor, "admin:")
	if !ok {
		return "", "", ErrInvalidActor
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return "", "", ErrInvalidActor
	}

	admin, err := s.admins.FindByID(ctx, id)
	if errors.Is(err, authdomain.ErrAdminNotFound) {
		return "", "", ErrForbidden
	}
	if err != nil {
		return "", "", err
	}
	role := strings.ToLower(strings.TrimSpace(admin.Role))
	if role == "" {
		return "", "", ErrForbidden
	}
	return "admin:" + id.String(), roleSubject(role), nil
}

// linkRole leaves subject with exactly one grouping rule, pointing at role.
func (s *ServiceImpl) linkRole(subject, role string) error {
	links, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	current := false
	var stale [][]string
	for _, link := range links {
		if len(link) >= 2 && link[1] == role {
			current = true
			continue
		}
		stale = append(stale, link)
	}
	if len(stale) > 0 {
		if _, err := s.enforcer.RemoveGroupingPolicies(stale); err != nil {
			return err
		}
	}
	if current {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role)
	return err
}
