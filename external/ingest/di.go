package ingest

import (
	"github.com/glintworks/murmur/internal/config"
	"github.com/glintworks/murmur/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		c := do.MustInvoke[*config.Config](i)
		manager := do.MustInvoke[*session.Manager](i)
		return NewServer(c.IngestListenAddr, manager), nil
	})
}
