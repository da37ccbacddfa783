package modules

import (
	"github.com/iota-uz/registrar/modules/registration"
	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/configuration"
)

// BuiltInModules returns the modules every registrar process loads.
func BuiltInModules(conf *configuration.Configuration) []application.Module {
	return []application.Module{
		registration.NewModule(&registration.ModuleOptions{Config: conf}),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
