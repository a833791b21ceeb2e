package controllers

import (
	"net/http"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/config"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general  *GeneralController
	activity *ActivityController
}

// NewControllerRegistry initializes all controllers with the provided
// runtime and services.
func NewControllerRegistry(rt *runtime.Runtime, svc *activity.Service, cfg config.Config) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(rt),
		activity: NewActivityController(svc, cfg),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.activity.RegisterRoutes(mux)
}
