package authorization

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectDonation     = "donation"
	ObjectDonor        = "donor"
	ObjectOrphanage    = "orphanage"
	ObjectNotification = "provider_notification"
	ObjectAdmin        = "admin"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionDonationView    = "donation.view"
	ActionDonationRequery = "donation.requery"

	ActionDonorView = "donor.view"

	ActionOrphanageCreate = "orphanage.create"
	ActionOrphanageUpdate = "orphanage.update"
	ActionOrphanageDelete = "orphanage.delete"
	ActionOrphanageVerify = "orphanage.verify"

	ActionNotificationView = "provider_notification.view"

	ActionAdminManage = "admin.manage"

	ActionAuditLogView = "audit_log.view"
)

const (
	subjectSystem = "system"
	roleSystem    = "role:system"
	anyAction     = "*"
)

func roleSubject(role string) string { return "role:" + role }

type grant struct {
	object string
	action string
}

// rolePolicies is the built-in policy set. Rows added to casbin_rule by hand
// survive restarts; these are only re-added when missing.
var rolePolicies = map[string][]grant{
	roleSubject(authdomain.RoleAdmin): {
		{ObjectDonation, ActionDonationView},
		{ObjectDonation, ActionDonationRequery},
		{ObjectDonor, ActionDonorView},
		{ObjectOrphanage, ActionOrphanageCreate},
		{ObjectOrphanage, ActionOrphanageUpdate},
		{ObjectOrphanage, ActionOrphanageVerify},
		{ObjectNotification, ActionNotificationView},
	},
	roleSubject(authdomain.RoleSuperAdmin): {
		{ObjectDonation, anyAction},
		{ObjectDonor, anyAction},
		{ObjectOrphanage, anyAction},
		{ObjectNotification, anyAction},
		{ObjectAdmin, ActionAdminManage},
		{ObjectAuditLog, ActionAuditLogView},
	},
	roleSystem: {
		{ObjectDonation, ActionDonationRequery},
	},
}

// NewEnforcer loads policies from the casbin_rule table through the gorm
// adapter and seeds the built-in ones.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	var missing [][]string
	for role, grants := range rolePolicies {
		for _, g := range grants {
			has, err := enforcer.HasPolicy(role, g.object, g.action)
			if err != nil {
				return err
			}
			if !has {
				missing = append(missing, []string{role, g.object, g.action})
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	_, err := enforcer.AddPolicies(missing)
	return err
}
