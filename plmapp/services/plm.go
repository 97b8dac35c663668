package services

import (
	"log"
	"net/http"
	"os"

	"openplm/plmapp/auth"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Plm bundles the services behind a single router.
type Plm struct {
	user      UserService
	group     GroupService
	lifecycle LifecycleService
	object    ObjectService
	ecr       EcrService

	db *gorm.DB
}

func NewPlm(db *gorm.DB, userAuth auth.IdentityProvider) Plm {
	return Plm{
		user:      UserService{db: db, userAuth: userAuth},
		group:     GroupService{db: db, userAuth: userAuth},
		lifecycle: LifecycleService{db: db, userAuth: userAuth},
		object:    ObjectService{db: db, userAuth: userAuth},
		ecr:       EcrService{db: db, userAuth: userAuth},
		db:        db,
	}
}

func (p *Plm) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/group", p.group.Routes())
	r.Mount("/lifecycle", p.lifecycle.Routes())
	r.Mount("/object", p.object.Routes())
	r.Mount("/ecr", p.ecr.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
