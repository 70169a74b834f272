package repository

import (
	"github.com/deppfellow/graphile-starter/internal/server"
)

type Repositories struct {
	Users *UserRepository
}

func NewRepositories(s *server.Server) *Repositories {
	return &Repositories{
		Users: NewUserRepository(s.DB.Pool),
	}
}
