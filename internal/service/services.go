package service

import (
	"github.com/deppfellow/graphile-starter/internal/lib/job"
	"github.com/deppfellow/graphile-starter/internal/repository"
	"github.com/deppfellow/graphile-starter/internal/server"
)

type Services struct {
	Auth *AuthService
	Job  *job.JobService
}

func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	authService := NewAuthService(s, repos.Users)

	return &Services{
		Job:  s.Job,
		Auth: authService,
	}, nil
}
