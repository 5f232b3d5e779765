package providers

import (
	"github.com/smallbiznis/donara/internal/providers/email"
	"github.com/smallbiznis/donara/internal/providers/firebase"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	"github.com/smallbiznis/donara/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	firebase.Module,
	pdf.Module,
	storage.Module,
)
