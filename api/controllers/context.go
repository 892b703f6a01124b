package controllers

import (
	"net/http"

	"github.com/stockroomhq/stockroom-backend/api/middleware"
)

func middlewareUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
